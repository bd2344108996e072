package tokens

import (
	"strings"
	"testing"
)

func TestNewCounter(t *testing.T) {
	for _, model := range []string{"qwen2.5:7b-instruct", "mistral:7b-instruct", "unknown-model"} {
		t.Run(model, func(t *testing.T) {
			counter, err := NewCounter(model)
			if err != nil {
				t.Fatalf("NewCounter(%s) failed: %v", model, err)
			}
			if counter == nil {
				t.Fatalf("NewCounter(%s) returned nil counter", model)
			}
		})
	}
}

func TestCount(t *testing.T) {
	counter, err := NewCounter("qwen2.5:7b-instruct")
	if err != nil {
		t.Fatalf("Failed to create token counter: %v", err)
	}

	tests := []struct {
		text      string
		minTokens int
		maxTokens int
	}{
		{"", 0, 0},
		{"Hello", 1, 2},
		{"Hello world", 2, 3},
		{"This is a longer sentence with more words.", 8, 12},
		{strings.Repeat("word ", 100), 90, 110},
	}

	for _, tt := range tests {
		got := counter.Count(tt.text)
		if got < tt.minTokens || got > tt.maxTokens {
			t.Errorf("Count(%q) = %d, want between %d and %d", tt.text, got, tt.minTokens, tt.maxTokens)
		}
	}
}

func TestCountShared(t *testing.T) {
	if got := Count("Hello world"); got < 2 || got > 3 {
		t.Errorf("Count(\"Hello world\") = %d, want 2..3", got)
	}
}

func TestNilCounterFallsBackToEstimate(t *testing.T) {
	var counter *Counter
	if got := counter.Count("12345678"); got != 2 {
		t.Errorf("expected character estimate of 2, got %d", got)
	}
}
