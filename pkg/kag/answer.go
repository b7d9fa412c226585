package kag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/noufalpm/invograph/pkg/vectorstore"
)

const answerContentLimit = 4000

const conversationalPrompt = `You are a friendly, helpful assistant that analyzes queries and provides conversational responses to questions about documents.

Document content: %s
User query: %s

First, analyze what specific information the user is looking for in the document.
Then, provide a conversational response based on the document content.

Instructions:
1. Respond in a friendly, conversational tone like a helpful assistant would.
2. Keep your response concise (1-3 sentences) but make it sound natural and helpful.
3. If the document contains structured data like an invoice, extract the relevant information but present it conversationally.
4. Don't just list facts - integrate them into a natural-sounding response.
5. NEVER respond with "No relevant information found" - instead, describe what you can see in the document.
6. For invoices, always mention the invoice number, amount, due date, and parties involved.
7. If the information requested is truly not in the document, say what the document does mention instead.`

const followupPrompt = `You are an expert at generating relevant follow-up questions based on document content.

Document content: %s
Original query: %s
Your response: %s

Generate 3 follow-up questions that would be logical next questions for the user to ask.
These questions should be directly related to the document content and your response.
Make the questions specific and insightful, focusing on important details in the document.

Return your answer as a JSON array of strings. Example:
["What is the payment method for this invoice?", "When was this invoice issued?", "Is there a discount available?"]`

// Answer is the response of the conversational query path.
type Answer struct {
	Query             string                     `json:"query"`
	Results           []vectorstore.SearchResult `json:"results"`
	Response          string                     `json:"conversational_response"`
	FollowupQuestions []string                   `json:"followup_questions"`
}

// Answerer runs the retrieval-augmented conversational path: vector search,
// a conversational answer over the combined chunks, then suggested
// follow-up questions.
type Answerer struct {
	client ChatCompleter
	model  string
	store  *vectorstore.Store
	logger *logrus.Logger
}

// NewAnswerer creates an answerer over the given vector store.
func NewAnswerer(client ChatCompleter, model string, store *vectorstore.Store, logger *logrus.Logger) *Answerer {
	return &Answerer{client: client, model: model, store: store, logger: logger}
}

var cannedFollowups = []string{
	"Can you tell me more about this document?",
	"What are the key details I should know about this document?",
	"Is there any other important information in this document?",
}

// QueryDocuments answers a free-text question over the indexed chunks.
func (a *Answerer) QueryDocuments(ctx context.Context, query string, k int) (*Answer, error) {
	results, err := a.store.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}

	var combined strings.Builder
	for _, r := range results {
		combined.WriteString(r.Content)
		combined.WriteString("\n\n")
	}
	content := truncate(combined.String(), answerContentLimit)

	response, err := a.complete(ctx, fmt.Sprintf(conversationalPrompt, content, query))
	if err != nil {
		a.logger.WithError(err).Warn("Conversational answer generation failed")
		return &Answer{
			Query:             query,
			Results:           results,
			Response:          "Sorry, I couldn't find the information you're looking for. Is there something else I can help with?",
			FollowupQuestions: cannedFollowups,
		}, nil
	}

	return &Answer{
		Query:             query,
		Results:           results,
		Response:          response,
		FollowupQuestions: a.followups(ctx, content, query, response),
	}, nil
}

func (a *Answerer) followups(ctx context.Context, content, query, response string) []string {
	raw, err := a.complete(ctx, fmt.Sprintf(followupPrompt, content, query, response))
	if err != nil {
		a.logger.WithError(err).Warn("Follow-up question generation failed")
		return cannedFollowups
	}

	var questions []string
	if err := json.Unmarshal([]byte(raw), &questions); err != nil || len(questions) == 0 {
		return cannedFollowups
	}
	return questions
}

func (a *Answerer) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
