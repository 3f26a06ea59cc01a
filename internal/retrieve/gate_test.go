package retrieve

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lodestone-ai/lodestone/internal/config"
)

type stubCompleter struct {
	answer string
	err    error
	delay  time.Duration
	prompt string
	system string
}

func (s *stubCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	s.system = system
	s.prompt = prompt
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.answer, s.err
}

func TestGate_ParsesDecision(t *testing.T) {
	tests := []struct {
		answer string
		want   bool
	}{
		{"yes", true},
		{"no", false},
		{"Yes", true},
		{"No.", false},
		{"  no \n", false},
		{`"no"`, false},
		{"maybe", true},            // unparseable fails open
		{"no, wait, yes", true},    // anything beyond one word fails open
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			g := NewGate(&stubCompleter{answer: tt.answer}, config.GateConfig{}, nil)
			if got := g.ShouldRetrieve(context.Background(), "message", nil); got != tt.want {
				t.Errorf("ShouldRetrieve with answer %q = %v, want %v", tt.answer, got, tt.want)
			}
		})
	}
}

func TestGate_FailsOpenOnError(t *testing.T) {
	g := NewGate(&stubCompleter{err: errors.New("model down")}, config.GateConfig{}, nil)

	if !g.ShouldRetrieve(context.Background(), "message", nil) {
		t.Error("classification error must fail open to retrieve")
	}
}

func TestGate_FailsOpenOnTimeout(t *testing.T) {
	g := NewGate(&stubCompleter{answer: "no", delay: time.Second}, config.GateConfig{
		Timeout: 20 * time.Millisecond,
	}, nil)

	start := time.Now()
	if !g.ShouldRetrieve(context.Background(), "message", nil) {
		t.Error("timeout must fail open to retrieve")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("gate did not cancel on timeout, took %v", elapsed)
	}
}

func TestGate_PromptExcludesSystemTurns(t *testing.T) {
	stub := &stubCompleter{answer: "yes"}
	g := NewGate(stub, config.GateConfig{}, nil)

	g.ShouldRetrieve(context.Background(), "current question", []Turn{
		{Role: "system", Content: "internal instructions"},
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	})

	if strings.Contains(stub.prompt, "internal instructions") {
		t.Error("system turns must not reach the classifier")
	}
	if !strings.Contains(stub.prompt, "earlier question") || !strings.Contains(stub.prompt, "earlier answer") {
		t.Errorf("conversational turns missing from prompt:\n%s", stub.prompt)
	}
	if !strings.Contains(stub.prompt, "current question") {
		t.Errorf("current message missing from prompt:\n%s", stub.prompt)
	}
}

func TestGate_HistoryWindowAndTruncation(t *testing.T) {
	stub := &stubCompleter{answer: "yes"}
	g := NewGate(stub, config.GateConfig{HistoryTurns: 2, MaxChars: 10}, nil)

	long := strings.Repeat("x", 50)
	g.ShouldRetrieve(context.Background(), "q", []Turn{
		{Role: "user", Content: "dropped oldest turn"},
		{Role: "user", Content: "second"},
		{Role: "assistant", Content: long},
	})

	if strings.Contains(stub.prompt, "dropped oldest turn") {
		t.Error("history window must keep only the most recent turns")
	}
	if strings.Contains(stub.prompt, long) {
		t.Error("turn content must be truncated to the character bound")
	}
	if !strings.Contains(stub.prompt, strings.Repeat("x", 10)+"...") {
		t.Errorf("truncated content missing marker:\n%s", stub.prompt)
	}
}
