package jsonpath

import (
	"errors"
	"testing"
)

const geminiReply = `{
  "candidates": [
    {"content": {"parts": [{"text": "Bonjour, tout le monde."}], "role": "model"}}
  ],
  "usageMetadata": {"totalTokenCount": 42}
}`

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    string
		wantErr error
	}{
		{"nested text", "candidates[0].content.parts[0].text", "Bonjour, tout le monde.", nil},
		{"integer", "usageMetadata.totalTokenCount", "42", nil},
		{"index out of range", "candidates[3].content", "", ErrNotFound},
		{"missing key", "choices[0].message", "", ErrNotFound},
		{"object is not scalar", "candidates[0].content", "", ErrNotScalar},
		{"bad index", "candidates[x]", "", ErrInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract([]byte(geminiReply), tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("got %q, %v", got, err)
			}
		})
	}
}

func TestExtractMalformedBody(t *testing.T) {
	if _, err := Extract([]byte("<html>"), "text"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestExtractTextFallbacks(t *testing.T) {
	if got := ExtractText([]byte(`{"text":"hello","lang":"en"}`), "results[0].transcript"); got != "hello" {
		t.Fatalf("fallback to text field: %q", got)
	}
	if got := ExtractText([]byte(`{"results":[{"transcript":"ok"}]}`), "results[0].transcript"); got != "ok" {
		t.Fatalf("path lookup: %q", got)
	}
	if got := ExtractText([]byte(`not json`), "text"); got != "" {
		t.Fatalf("malformed body: %q", got)
	}
}

func TestParseKeyAndIndexes(t *testing.T) {
	key, idxs, err := ParseKeyAndIndexes("foo[0][1]")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if key != "foo" || len(idxs) != 2 || idxs[0] != 0 || idxs[1] != 1 {
		t.Fatalf("unexpected parse result: key=%s idxs=%v", key, idxs)
	}
	if _, _, err := ParseKeyAndIndexes("foo[1"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
}
