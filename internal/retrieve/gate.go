package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lodestone-ai/lodestone/internal/config"
)

// Completer is the classification provider behind the gate: one prompt
// in, one short text out. Supplied by a model-client adapter.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Turn is one conversational message given to the gate as context.
type Turn struct {
	Role    string // "user", "assistant", or "system"
	Content string
}

const gateSystemPrompt = `You decide whether a user message needs information from the user's indexed files to answer well.
Answer with exactly one word: "yes" if file content would help, "no" if the message is small talk, a meta question, or answerable without any file context.`

// Gate decides per message whether hybrid retrieval should run. The
// decision is a single call to a small model, bounded by a timeout, and
// fails open: any error, timeout, or unparseable answer means retrieve.
// Decisions are never cached because intent depends on conversational
// context that changes every turn.
type Gate struct {
	completer Completer
	cfg       config.GateConfig
	logger    *slog.Logger
}

// NewGate creates a gate. Zero config fields fall back to defaults.
func NewGate(completer Completer, cfg config.GateConfig, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = config.DefaultGateHistoryTurns
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = config.DefaultGateMaxChars
	}
	return &Gate{completer: completer, cfg: cfg, logger: logger}
}

// ShouldRetrieve classifies the message in its recent conversational
// context. True means run retrieval.
func (g *Gate) ShouldRetrieve(ctx context.Context, message string, history []Turn) bool {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	answer, err := g.completer.Complete(ctx, gateSystemPrompt, g.buildPrompt(message, history))
	if err != nil {
		g.logger.Debug("gate classification failed, retrieving anyway", "error", err)
		return true
	}

	switch strings.ToLower(strings.Trim(strings.TrimSpace(answer), `."'`)) {
	case "no":
		return false
	case "yes":
		return true
	default:
		g.logger.Debug("gate answer unparseable, retrieving anyway", "answer", answer)
		return true
	}
}

// buildPrompt renders the last few non-system turns plus the current
// message, each truncated to the configured character bound.
func (g *Gate) buildPrompt(message string, history []Turn) string {
	var turns []Turn
	for _, t := range history {
		if t.Role == "system" {
			continue
		}
		turns = append(turns, t)
	}
	if len(turns) > g.cfg.HistoryTurns {
		turns = turns[len(turns)-g.cfg.HistoryTurns:]
	}

	var b strings.Builder
	if len(turns) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, t := range turns {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, truncate(t.Content, g.cfg.MaxChars))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Current message: %s", truncate(message, g.cfg.MaxChars))
	return b.String()
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars]) + "..."
}
