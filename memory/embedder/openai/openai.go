// Package openai implements memory.Embedder on the OpenAI embeddings
// API using the official client. The default model is
// text-embedding-3-small (1536 dimensions).
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/becomeliminal/recall-go/memory"
)

// Options configure the OpenAI embedder.
type Options struct {
	Model  openai.EmbeddingModel
	APIKey string
}

// Embedder wraps the OpenAI embeddings endpoint behind the generic
// memory.Embedder interface.
type Embedder struct {
	client openai.Client
	model  openai.EmbeddingModel
}

// New creates an OpenAI embedder. Without options the client reads
// OPENAI_API_KEY from the environment and uses text-embedding-3-small.
func New(optFns ...func(o *Options)) *Embedder {
	opts := Options{Model: openai.EmbeddingModelTextEmbedding3Small}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	return &Embedder{
		client: openai.NewClient(clientOpts...),
		model:  opts.Model,
	}
}

// Embed converts a single text to a vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch converts several texts in one API call, preserving input
// order. Blank texts map to zero vectors without a round trip.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var reqTexts []string
	var reqIdx []int
	for i, text := range texts {
		if text == "" {
			out[i] = make([]float32, e.Dimensions())
			continue
		}
		reqTexts = append(reqTexts, text)
		reqIdx = append(reqIdx, i)
	}
	if len(reqTexts) == 0 {
		return out, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: reqTexts},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: openai embeddings: %v", memory.ErrEmbeddingUnavailable, err)
	}
	if len(resp.Data) != len(reqTexts) {
		return nil, fmt.Errorf("%w: openai returned %d embeddings for %d inputs",
			memory.ErrEmbeddingUnavailable, len(resp.Data), len(reqTexts))
	}

	for i, data := range resp.Data {
		vec := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float32(v)
		}
		out[reqIdx[i]] = vec
	}
	return out, nil
}

// Dimensions returns the embedding size for the configured model.
func (e *Embedder) Dimensions() int {
	switch e.model {
	case openai.EmbeddingModelTextEmbedding3Large:
		return 3072
	default:
		// text-embedding-3-small and ada-002
		return 1536
	}
}
