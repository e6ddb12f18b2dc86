package keys

import (
	"strings"
	"testing"
)

func TestNormalizePrompt(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase and trim", "  Modern Fitness App  ", "clean fitness app"},
		{"synonym folding", "Premium professional design", "pro pro design"},
		{"whitespace collapse", "blue\t\tgradient   icon", "blue gradient icon"},
		{"whole token only", "modernist premium-ish", "modernist premium-ish"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePrompt(tt.in); got != tt.want {
				t.Errorf("NormalizePrompt(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("clean fitness app clean icon")
	want := []string{"app", "clean", "fitness", "icon"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCanonicalizeStyleOrderIndependent(t *testing.T) {
	a := CanonicalizeStyle(map[string]string{"color": "blue", "style": "clean", "theme": "dark"})
	b := CanonicalizeStyle(map[string]string{"theme": "dark", "style": "clean", "color": "blue"})
	if a != b {
		t.Errorf("canonical forms differ: %q vs %q", a, b)
	}
	if a != "color=blue;style=clean;theme=dark" {
		t.Errorf("unexpected canonical form: %q", a)
	}
}

func TestCanonicalizeStyleEmpty(t *testing.T) {
	if got := CanonicalizeStyle(nil); got != "" {
		t.Errorf("nil style canonicalized to %q", got)
	}
	if got := CanonicalizeStyle(map[string]string{}); got != "" {
		t.Errorf("empty style canonicalized to %q", got)
	}
}

func TestDeriveDeterministic(t *testing.T) {
	style := map[string]string{"color": "blue"}
	k1 := Derive("icon", "Modern fitness app icon blue", style)
	k2 := Derive("icon", "Modern fitness app icon blue", style)
	if k1 != k2 {
		t.Errorf("same inputs produced different keys: %q vs %q", k1, k2)
	}
}

func TestDeriveStylePermutation(t *testing.T) {
	k1 := Derive("icon", "app icon", map[string]string{"a": "1", "b": "2", "c": "3"})
	k2 := Derive("icon", "app icon", map[string]string{"c": "3", "a": "1", "b": "2"})
	if k1 != k2 {
		t.Errorf("style key order changed the cache key: %q vs %q", k1, k2)
	}
}

func TestDeriveDistinguishesInputs(t *testing.T) {
	base := Derive("icon", "fitness app icon", nil)
	if Derive("screenshot", "fitness app icon", nil) == base {
		t.Error("category not reflected in key")
	}
	if Derive("icon", "running app icon", nil) == base {
		t.Error("prompt not reflected in key")
	}
	if Derive("icon", "fitness app icon", map[string]string{"color": "red"}) == base {
		t.Error("style not reflected in key")
	}
}

func TestDeriveFormat(t *testing.T) {
	k := Derive("icon", "fitness app", nil)
	if !strings.HasPrefix(k, "icon_") {
		t.Errorf("key missing category prefix: %q", k)
	}
	hash := strings.TrimPrefix(k, "icon_")
	if len(hash) != 16 {
		t.Errorf("hash part is %d chars, want 16: %q", len(hash), hash)
	}
}

func TestDeriveSynonymsCollide(t *testing.T) {
	// Prompts differing only by folded synonyms must share a key.
	k1 := Derive("icon", "premium fitness icon", nil)
	k2 := Derive("icon", "professional fitness icon", nil)
	if k1 != k2 {
		t.Errorf("synonym prompts derived different keys: %q vs %q", k1, k2)
	}
}
