package domain

import (
	"strings"
	"testing"
)

func TestBuildExplanationPrompt_NumbersSources(t *testing.T) {
	sources := []Source{
		{ID: 1, Title: "Vibe Coding Explained", URL: "https://a.example", Snippet: "about vibe coding"},
		{ID: 2, Title: "AI Pair Programming", URL: "https://b.example", Snippet: "pairing with models"},
	}

	prompt := BuildExplanationPrompt("Vibe coding is the future.", sources)

	if !strings.Contains(prompt, `"Vibe coding is the future."`) {
		t.Error("prompt must embed the post text")
	}
	if !strings.Contains(prompt, "[1] Vibe Coding Explained") {
		t.Error("prompt must number the first source [1]")
	}
	if !strings.Contains(prompt, "[2] AI Pair Programming") {
		t.Error("prompt must number the second source [2]")
	}
	if !strings.Contains(prompt, "URL: https://a.example") {
		t.Error("prompt must include source URLs")
	}
}

func TestBuildExplanationPrompt_NoSources(t *testing.T) {
	prompt := BuildExplanationPrompt("hello", nil)

	if !strings.Contains(prompt, "No relevant search results found.") {
		t.Error("prompt must state that no search results were found")
	}
}

func TestFingerprint_NormalizesTextOnly(t *testing.T) {
	a := Post{Text: "Hello World"}.Fingerprint()
	b := Post{Text: "  hello world  "}.Fingerprint()
	c := Post{Text: "hello world", ImageURL: "https://img.example/x.png"}.Fingerprint()

	if a != b {
		t.Error("fingerprint must normalize case and whitespace")
	}
	if a == c {
		t.Error("fingerprint must include the image reference")
	}
	if !strings.HasPrefix(a, "explain:") {
		t.Errorf("unexpected fingerprint shape: %q", a)
	}
}
