// Package openai implements crawler.Embedder on the OpenAI embeddings API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/JakeFAU/pageindex/internal/crawler"
	"github.com/JakeFAU/pageindex/internal/logging"
)

const (
	// DefaultModel is the embedding model used when none is configured.
	DefaultModel = "text-embedding-3-small"
	// DefaultTokenLimit is the per-input token limit of DefaultModel.
	DefaultTokenLimit = 8191
)

// Config controls the embeddings client.
type Config struct {
	APIKey string
	// BaseURL overrides the API root, e.g. for a compatible proxy.
	BaseURL    string
	Model      string
	Dimensions int
	TokenLimit int
	HTTPClient *http.Client
}

// Embedder calls the embeddings endpoint after validating inputs locally.
type Embedder struct {
	client    *goopenai.Client
	model     goopenai.EmbeddingModel
	dims      int
	limit     int
	tokenizer crawler.Tokenizer
	logger    *zap.Logger
}

// New builds an Embedder. The tokenizer counts tokens for input validation.
func New(cfg Config, tokenizer crawler.Tokenizer, logger *zap.Logger) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding api key is required")
	}
	if tokenizer == nil {
		return nil, fmt.Errorf("tokenizer is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.TokenLimit <= 0 {
		cfg.TokenLimit = DefaultTokenLimit
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	return &Embedder{
		client:    goopenai.NewClientWithConfig(clientCfg),
		model:     goopenai.EmbeddingModel(cfg.Model),
		dims:      cfg.Dimensions,
		limit:     cfg.TokenLimit,
		tokenizer: tokenizer,
		logger:    logging.Component(logger, "embedder"),
	}, nil
}

// ValidateInput rejects an empty batch, empty texts and texts over the token limit.
func (e *Embedder) ValidateInput(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts", crawler.ErrEmbeddingInput)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text %d is empty", crawler.ErrEmbeddingInput, i)
		}
		if n := len(e.tokenizer.Encode(text)); n > e.limit {
			return fmt.Errorf("%w: text %d has %d tokens, limit is %d", crawler.ErrEmbeddingInput, i, n, e.limit)
		}
	}
	return nil
}

// Embed returns one vector per text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.ValidateInput(texts); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      e.model,
		Dimensions: e.dims,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("create embeddings: got %d vectors for %d texts", len(resp.Data), len(texts))
	}

	// The API does not promise response order; Index points back into texts.
	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) || vectors[item.Index] != nil {
			return nil, fmt.Errorf("create embeddings: unexpected index %d", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}

	e.logger.Debug("embedded texts",
		zap.Int("texts", len(texts)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return vectors, nil
}
