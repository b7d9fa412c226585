package services

import (
	"os"
	"sync"

	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIClient returns the process-wide OpenAI client, configured
// from OPENAI_API_KEY with an optional OPENAI_BASE_URL override.
var DefaultOpenAIClient = sync.OnceValue(func() *openai.Client {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		panic("OPENAI_API_KEY is not set")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.BaseURL = baseURL
	}

	return openai.NewClientWithConfig(config)
})
