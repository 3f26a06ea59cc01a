// Package ai adapts the Genkit model providers to the narrow interfaces
// the engine consumes: an embedding function for the vector store and a
// completion call for the retrieval gate.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	chromem "github.com/philippgille/chromem-go"
	"google.golang.org/genai"

	"github.com/lodestone-ai/lodestone/internal/config"
)

// Client wraps an initialized Genkit instance for one provider.
type Client struct {
	g      *genkit.Genkit
	cfg    config.AIConfig
	logger *slog.Logger
}

// New initializes Genkit with the configured provider. Gemini and
// OpenAI read their API keys from the environment; Ollama needs its
// models registered explicitly.
func New(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var g *genkit.Genkit
	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		for _, name := range modelNames(cfg.ModelName, cfg.GateModelName) {
			ollamaPlugin.DefineModel(g, ollama.ModelDefinition{Name: name, Type: "chat"}, nil)
		}
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized genkit with openai provider", "model", cfg.ModelName)

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit with gemini provider", "model", cfg.ModelName)
	}

	return &Client{g: g, cfg: cfg, logger: logger}, nil
}

func modelNames(names ...string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Embedder looks up the embedder registered by the provider plugin.
func (c *Client) Embedder() (ai.Embedder, error) {
	var embedder ai.Embedder
	switch c.cfg.Provider {
	case config.ProviderOllama:
		embedder = ollama.Embedder(c.g, c.cfg.OllamaHost)
	case config.ProviderOpenAI:
		embedder = genkit.LookupEmbedder(c.g, api.NewName("openai", c.cfg.EmbedderModel))
	default:
		embedder = googlegenai.GoogleAIEmbedder(c.g, c.cfg.EmbedderModel)
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", c.cfg.EmbedderModel, c.cfg.Provider)
	}
	return embedder, nil
}

// EmbeddingFunc bridges the provider's embedder to the vector store.
// The vector store needs a fixed dimension for the lifetime of an index
// directory, so the output dimensionality is pinned where the provider
// supports it. chromem-go normalizes vectors itself, so the raw
// embedding is passed through.
func (c *Client) EmbeddingFunc() (chromem.EmbeddingFunc, error) {
	embedder, err := c.Embedder()
	if err != nil {
		return nil, err
	}

	var options any
	if c.cfg.Provider == "" || c.cfg.Provider == config.ProviderGemini {
		if dim := int32(c.cfg.EmbeddingDimensions); dim > 0 {
			options = &genai.EmbedContentConfig{OutputDimensionality: &dim}
		}
	}

	return func(ctx context.Context, text string) ([]float32, error) {
		resp, err := embedder.Embed(ctx, &ai.EmbedRequest{
			Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
			Options: options,
		})
		if err != nil {
			return nil, fmt.Errorf("embed failed: %w", err)
		}
		if len(resp.Embeddings) == 0 {
			return nil, errors.New("no embeddings returned")
		}
		return resp.Embeddings[0].Embedding, nil
	}, nil
}

// Complete runs one prompt through the gate model and returns the text
// response. Satisfies the retrieval gate's Completer interface.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	model := c.cfg.GateModelName
	if model == "" {
		model = c.cfg.ModelName
	}

	response, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.qualifiedModelName(model)),
		ai.WithSystem(system),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}
	return strings.TrimSpace(response.Text()), nil
}

// qualifiedModelName prefixes the provider namespace when the
// configured name does not carry one already.
func (c *Client) qualifiedModelName(model string) string {
	if strings.Contains(model, "/") {
		return model
	}
	switch c.cfg.Provider {
	case config.ProviderOllama:
		return "ollama/" + model
	case config.ProviderOpenAI:
		return "openai/" + model
	default:
		return "googleai/" + model
	}
}
