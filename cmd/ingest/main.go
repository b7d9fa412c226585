package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/noufalpm/invograph/pkg/blobstore"
	"github.com/noufalpm/invograph/pkg/graphstore"
	"github.com/noufalpm/invograph/pkg/kag"
	"github.com/noufalpm/invograph/services"
)

var (
	inputDir = flag.String("input", "", "Directory containing invoice documents")
	envFile  = flag.String("env", ".env", "Path to environment file")
	dynamic  = flag.Bool("dynamic", false, "Use schema inference instead of the invoice fast path")
	logLevel = flag.String("log-level", "info", "Logging level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatalf("Invalid log level: %v", err)
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if *inputDir == "" {
		logger.Fatal("Input directory must be specified")
	}

	if err := godotenv.Load(*envFile); err != nil {
		logger.Warnf("Error loading env file %s: %v", *envFile, err)
	}

	ctx := context.Background()

	store, err := graphstore.NewNeo4jStore(
		envOr("NEO4J_URI", "bolt://localhost:7687"),
		envOr("NEO4J_USER", "neo4j"),
		os.Getenv("NEO4J_PASSWORD"),
		logger,
	)
	if err != nil {
		logger.Fatalf("Failed to create Neo4j driver: %v", err)
	}
	defer store.Close()

	if err := store.Connect(ctx); err != nil {
		logger.Fatalf("Failed to connect to Neo4j: %v", err)
	}

	client := services.DefaultOpenAIClient()
	model := envOr("OPENAI_MODEL", openai.GPT4o)
	intentModel := envOr("OPENAI_INTENT_MODEL", openai.GPT3Dot5Turbo)

	svc := kag.NewService(
		kag.NewTextExtractor(logger),
		kag.NewSchemaInferencer(client, model, logger),
		kag.NewStructuredExtractor(client, model, logger),
		kag.NewMaterializer(store, logger),
		kag.NewSearchTranslator(client, model, store, logger),
		kag.NewIntentProjector(client, intentModel, logger),
		store,
		blobstore.FromEnv(ctx, logger),
		logger,
	)

	files, err := readInputFiles(*inputDir)
	if err != nil {
		logger.Fatalf("Failed to read input directory: %v", err)
	}
	if len(files) == 0 {
		logger.Fatal("No input files found")
	}

	logger.Infof("Ingesting %d documents...", len(files))

	ingested := 0
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			logger.Errorf("Failed to read file %s: %v", file, err)
			continue
		}

		inputType := inputTypeForExt(filepath.Ext(file))

		if *dynamic {
			documentID, schema, err := svc.IngestDynamic(ctx, content, inputType)
			if err != nil {
				logger.Errorf("Failed to ingest %s: %v", file, err)
				continue
			}
			logger.Infof("Ingested %s as %s document %s (%d entity types)",
				filepath.Base(file), schema.DocumentType, documentID, len(schema.Entities))
		} else {
			result, err := svc.Ingest(ctx, content, inputType)
			if err != nil {
				logger.Errorf("Failed to ingest %s: %v", file, err)
				continue
			}
			logger.Infof("Ingested %s as document %s (%d entities, %d relationships)",
				filepath.Base(file), result.DocumentID, result.EntityCount, result.RelationshipCount)
		}
		ingested++
	}

	logger.Infof("Done: %d of %d documents ingested", ingested, len(files))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func inputTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return kag.InputTypePDF
	case ".html", ".htm":
		return kag.InputTypeHTML
	default:
		return kag.InputTypeText
	}
}

// readInputFiles collects ingestible documents from the input directory.
func readInputFiles(inputDir string) ([]string, error) {
	supportedExtensions := map[string]bool{
		".pdf": true, ".html": true, ".htm": true, ".txt": true, ".md": true,
	}

	var files []string
	err := filepath.Walk(inputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			ext := strings.ToLower(filepath.Ext(path))
			if supportedExtensions[ext] {
				files = append(files, path)
			}
		}
		return nil
	})

	return files, err
}
