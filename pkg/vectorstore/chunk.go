package vectorstore

import (
	"github.com/pkg/errors"
	"github.com/pkoukk/tiktoken-go"
)

const (
	maxTokensPerChunk = 512
	overlapTokens     = 50
)

// SplitIntoChunks splits text into token-bounded chunks with a small
// overlap so sentences straddling a boundary stay searchable.
func SplitIntoChunks(content string) ([]string, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, errors.Wrap(err, "failed to get encoding")
	}

	tokens := encoding.Encode(content, nil, nil)

	var chunks []string
	var currentChunk []int

	for i := 0; i < len(tokens); i++ {
		currentChunk = append(currentChunk, tokens[i])

		if len(currentChunk) >= maxTokensPerChunk {
			chunks = append(chunks, encoding.Decode(currentChunk))

			if len(currentChunk) > overlapTokens {
				currentChunk = currentChunk[len(currentChunk)-overlapTokens:]
			} else {
				currentChunk = []int{}
			}
		}
	}

	if len(currentChunk) > 0 {
		chunks = append(chunks, encoding.Decode(currentChunk))
	}

	return chunks, nil
}
