package vectorstore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/qdrant/go-client/qdrant"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/noufalpm/invograph/pkg/kag/metrics"
)

// Embedder is the slice of the OpenAI client the store needs. Satisfied by
// *openai.Client and by test doubles.
type Embedder interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// pointClient is the slice of the Qdrant client the store uses. Satisfied
// by *qdrant.Client and by test doubles.
type pointClient interface {
	GetCollectionInfo(ctx context.Context, collection string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, collection string) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
}

// SearchResult is one ranked chunk returned by Search.
type SearchResult struct {
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

// Config holds the Qdrant connection and embedding parameters.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Model      openai.EmbeddingModel
	Dimensions uint64
}

const (
	writeAttempts = 3
	writeBackoff  = time.Second
)

// Store is a chunked vector index over document text with an explicit
// degradation state machine: it starts in the primary (Qdrant) state and
// downgrades to an in-memory keyword index when the primary is unreachable
// or its write path keeps failing. The downgrade is one-way until the
// process restarts.
type Store struct {
	cfg      Config
	client   pointClient
	embedder Embedder
	memory   *MemoryIndex
	logger   *logrus.Logger

	split   func(string) ([]string, error)
	backoff time.Duration

	mu       sync.Mutex
	degraded bool
}

// NewStore connects to Qdrant. A connection failure does not prevent
// construction: the store starts degraded and search falls back to the
// in-memory index.
func NewStore(cfg Config, embedder Embedder, logger *logrus.Logger) *Store {
	s := &Store{
		cfg:      cfg,
		embedder: embedder,
		memory:   NewMemoryIndex(),
		logger:   logger,
		split:    SplitIntoChunks,
		backoff:  writeBackoff,
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to connect to Qdrant, vector search degrades to in-memory index")
		s.downgrade()
		return s
	}

	s.client = client
	return s
}

// EnsureCollection creates the collection when it does not exist yet.
func (s *Store) EnsureCollection(ctx context.Context) error {
	if s.Degraded() {
		return nil
	}

	if info, err := s.client.GetCollectionInfo(ctx, s.cfg.Collection); err == nil && info != nil {
		return nil
	}

	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     s.cfg.Dimensions,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create collection %s", s.cfg.Collection)
	}
	return nil
}

// Degraded reports whether the store has fallen back to in-memory search.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *Store) downgrade() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return
	}
	s.degraded = true
	metrics.VectorStoreDegraded.Set(1)
	s.logger.Warn("Vector store downgraded to in-memory keyword search until restart")
}

// Add chunks the text, records every chunk in the in-memory index, then
// embeds and upserts into Qdrant with bounded retries. Exhausting the
// retries downgrades the store rather than failing the ingestion.
func (s *Store) Add(ctx context.Context, source, text string) error {
	chunks, err := s.split(text)
	if err != nil {
		return errors.Wrap(err, "failed to split text into chunks")
	}

	// The memory index always holds previously seen chunks so degraded
	// search has something to rank.
	for i, chunk := range chunks {
		s.memory.Add(source, i, chunk)
	}

	if s.Degraded() {
		return nil
	}

	points, err := s.buildPoints(ctx, source, chunks)
	if err != nil {
		return err
	}

	waitUpsert := true
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.cfg.Collection,
			Wait:           &waitUpsert,
			Points:         points,
		})
		if err == nil {
			return nil
		}

		s.logger.WithError(err).WithField("attempt", attempt).Warn("Vector store write failed")
		if attempt < writeAttempts {
			metrics.VectorWriteRetries.Inc()
			time.Sleep(s.backoff)
		}
	}

	s.downgrade()
	return nil
}

func (s *Store) buildPoints(ctx context.Context, source string, chunks []string) ([]*qdrant.PointStruct, error) {
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, chunk := range chunks {
		resp, err := s.embedder.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{chunk},
			Model: s.cfg.Model,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to generate embeddings")
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(source+strconv.Itoa(i))).String()),
			Vectors: qdrant.NewVectors(resp.Data[0].Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				"source":     source,
				"content":    chunk,
				"chunkIndex": i,
			}),
		})
	}
	return points, nil
}

// Search returns the top-k chunks for a query. In the degraded state, or
// when the primary search fails, results come from the in-memory keyword
// index instead.
func (s *Store) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if s.Degraded() {
		return s.memory.Search(query, k), nil
	}

	results, err := s.searchPrimary(ctx, query, k)
	if err != nil {
		s.logger.WithError(err).Warn("Vector search failed, using in-memory fallback")
		return s.memory.Search(query, k), nil
	}
	return results, nil
}

func (s *Store) searchPrimary(ctx context.Context, query string, k int) ([]SearchResult, error) {
	resp, err := s.embedder.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{query},
		Model: s.cfg.Model,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed query")
	}

	limit := uint64(k)
	scoreThreshold := float32(0.3)

	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(resp.Data[0].Embedding...),
		Limit:          &limit,
		ScoreThreshold: &scoreThreshold,
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, SearchResult{
			Content:    hit.Payload["content"].GetStringValue(),
			Source:     hit.Payload["source"].GetStringValue(),
			ChunkIndex: int(hit.Payload["chunkIndex"].GetIntegerValue()),
			Score:      hit.Score,
		})
	}
	return results, nil
}

// Clear destructively resets the index: the Qdrant collection is dropped
// and recreated, and the in-memory index is emptied.
func (s *Store) Clear(ctx context.Context) error {
	s.memory.Clear()

	if s.Degraded() {
		return nil
	}

	if err := s.client.DeleteCollection(ctx, s.cfg.Collection); err != nil {
		return errors.Wrapf(err, "failed to delete collection %s", s.cfg.Collection)
	}
	return s.EnsureCollection(ctx)
}
