package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/noufalpm/invograph/pkg/blobstore"
	"github.com/noufalpm/invograph/pkg/graphstore"
	"github.com/noufalpm/invograph/pkg/kag"
	"github.com/noufalpm/invograph/pkg/vectorstore"
	"github.com/noufalpm/invograph/services"
	"github.com/noufalpm/invograph/tools"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	envFile := flag.String("env", ".env", "Path to environment file")
	enableSSE := flag.Bool("sse", false, "Enable SSE server")
	sseAddr := flag.String("sse-addr", ":8080", "Address for SSE server to listen on")
	sseBasePath := flag.String("sse-base-path", "/mcp", "Base path for SSE endpoints")
	logLevel := flag.String("log-level", "info", "Logging level (debug, info, warn, error)")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(level)
	}

	if err := godotenv.Load(*envFile); err != nil {
		logger.WithError(err).Warnf("Error loading env file %s", *envFile)
	}

	ctx := context.Background()

	// Graph store. A connection failure degrades graph features instead of
	// preventing startup.
	graphStore, err := graphstore.NewNeo4jStore(
		envOr("NEO4J_URI", "bolt://localhost:7687"),
		envOr("NEO4J_USER", "neo4j"),
		os.Getenv("NEO4J_PASSWORD"),
		logger,
	)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Neo4j driver")
	}
	defer graphStore.Close()

	if err := graphStore.Connect(ctx); err != nil {
		logger.WithError(err).Warn("Failed to connect to Neo4j, knowledge graph features will not work properly")
	}

	openaiClient := services.DefaultOpenAIClient()

	// Vector store. Construction never fails; an unreachable Qdrant leaves
	// the store in its degraded in-memory state.
	qdrantPort, err := strconv.Atoi(envOr("QDRANT_PORT", "6334"))
	if err != nil {
		logger.WithError(err).Fatal("Invalid QDRANT_PORT")
	}
	vectors := vectorstore.NewStore(vectorstore.Config{
		Host:       envOr("QDRANT_HOST", "localhost"),
		Port:       qdrantPort,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_USE_TLS") == "true",
		Collection: envOr("QDRANT_COLLECTION", "pdf_documents"),
		Model:      openai.SmallEmbedding3,
		Dimensions: 1536,
	}, openaiClient, logger)
	if err := vectors.EnsureCollection(ctx); err != nil {
		logger.WithError(err).Warn("Failed to initialize vector collection, document search will not work properly")
	}

	blobs := blobstore.FromEnv(ctx, logger)

	extractionModel := envOr("OPENAI_MODEL", openai.GPT4o)
	intentModel := envOr("OPENAI_INTENT_MODEL", openai.GPT3Dot5Turbo)
	answerModel := envOr("OPENAI_ANSWER_MODEL", openai.GPT4)

	extractor := kag.NewTextExtractor(logger)
	inferencer := kag.NewSchemaInferencer(openaiClient, extractionModel, logger)
	structured := kag.NewStructuredExtractor(openaiClient, extractionModel, logger)
	materializer := kag.NewMaterializer(graphStore, logger)
	search := kag.NewSearchTranslator(openaiClient, extractionModel, graphStore, logger)
	intent := kag.NewIntentProjector(openaiClient, intentModel, logger)
	answerer := kag.NewAnswerer(openaiClient, answerModel, vectors, logger)

	svc := kag.NewService(extractor, inferencer, structured, materializer, search, intent, graphStore, blobs, logger)

	mcpServer := server.NewMCPServer(
		"invograph",
		"1.0.0",
		server.WithLogging(),
	)

	tools.RegisterKagTools(mcpServer, svc)
	tools.RegisterDocumentTools(mcpServer, extractor, vectors, answerer)

	if *enableSSE || os.Getenv("ENABLE_SSE") == "true" {
		sseServer := server.NewSSEServer(
			mcpServer,
			server.WithBasePath(*sseBasePath),
			server.WithKeepAlive(true),
		)

		go func() {
			logger.Infof("Starting SSE server on %s with base path %s", *sseAddr, *sseBasePath)
			if err := sseServer.Start(*sseAddr); err != nil {
				logger.WithError(err).Fatal("Failed to start SSE server")
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		sig := <-sigCh
		logger.Infof("Received signal %v, shutting down...", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := sseServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Error during SSE server shutdown")
		}
	} else {
		if err := server.ServeStdio(mcpServer); err != nil {
			panic(fmt.Sprintf("Server error: %v", err))
		}
	}
}
