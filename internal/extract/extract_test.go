package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// stubExtractor handles ".pdf" and records calls.
type stubExtractor struct {
	result string
	err    error
	calls  int
}

func (s *stubExtractor) Extract(_ context.Context, _ []byte, _ string) (string, error) {
	s.calls++
	return s.result, s.err
}

func (s *stubExtractor) Supports(ext string) bool { return ext == ".pdf" }

func TestText_UTF8Passthrough(t *testing.T) {
	got, err := Text(context.Background(), nil, []byte("héllo wörld"), ".md")
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if got != "héllo wörld" {
		t.Errorf("got %q, want UTF-8 passthrough", got)
	}
}

func TestText_Latin1Fallback(t *testing.T) {
	// 0xE9 is 'é' in Latin-1 and invalid as a standalone UTF-8 byte.
	data := []byte{'c', 'a', 'f', 0xE9}

	got, err := Text(context.Background(), nil, data, ".txt")
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if got != "café" {
		t.Errorf("got %q, want %q", got, "café")
	}
}

func TestText_ExtractorWinsForStructuredDocs(t *testing.T) {
	stub := &stubExtractor{result: "pdf text"}

	got, err := Text(context.Background(), stub, []byte{0x25, 0x50, 0x44, 0x46}, ".PDF")
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if got != "pdf text" {
		t.Errorf("got %q, want extractor output", got)
	}
	if stub.calls != 1 {
		t.Errorf("extractor called %d times, want 1", stub.calls)
	}
}

func TestText_ExtractorErrorPropagates(t *testing.T) {
	stub := &stubExtractor{err: errors.New("corrupt document")}

	_, err := Text(context.Background(), stub, nil, ".pdf")
	if err == nil {
		t.Fatal("expected error from failing extractor")
	}
	if !strings.Contains(err.Error(), "corrupt document") {
		t.Errorf("error should wrap extractor failure: %v", err)
	}
}

func TestText_ExtractorIgnoredForPlainText(t *testing.T) {
	stub := &stubExtractor{result: "should not be used"}

	got, err := Text(context.Background(), stub, []byte("plain"), ".go")
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if got != "plain" {
		t.Errorf("got %q, want plain decode", got)
	}
	if stub.calls != 0 {
		t.Error("extractor must not run for unsupported extensions")
	}
}

func TestAsciiStrip(t *testing.T) {
	got := asciiStrip([]byte{'o', 'k', 0x00, '\n', 0xFE, '!'})
	if got != "ok \n !" {
		t.Errorf("got %q, want %q", got, "ok \n !")
	}
}
