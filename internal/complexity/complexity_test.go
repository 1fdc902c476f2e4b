package complexity

import (
	"reflect"
	"strings"
	"testing"
)

func TestAnalyzeGreeting(t *testing.T) {
	got := Analyze("hello")
	if got.Score != 0 {
		t.Fatalf("expected score 0 for greeting, got %f", got.Score)
	}
	if got.Type != TypeSimple {
		t.Fatalf("expected type simple, got %s", got.Type)
	}
	if len(got.Factors) != 0 {
		t.Fatalf("expected no factors, got %v", got.Factors)
	}
}

func TestAnalyzeWorkplaceEmotional(t *testing.T) {
	got := Analyze("I feel anxious and overwhelmed at work")

	wantFactors := map[string]bool{
		"multi-part":        true,
		"workplace-context": true,
		"emotional-content": true,
	}
	for _, f := range got.Factors {
		if !wantFactors[f] {
			t.Fatalf("unexpected factor %q in %v", f, got.Factors)
		}
		delete(wantFactors, f)
	}
	for f := range wantFactors {
		t.Fatalf("missing factor %q in %v", f, got.Factors)
	}

	if got.Score < 0.7 {
		t.Fatalf("expected score >= 0.7, got %f", got.Score)
	}
	if got.Type != TypeComplex {
		t.Fatalf("expected type complex, got %s", got.Type)
	}
}

func TestAnalyzeLongMessage(t *testing.T) {
	msg := strings.Repeat("tell me more about the weather today ", 6)
	if len(msg) <= longMessageChars {
		t.Fatalf("test message too short: %d chars", len(msg))
	}

	got := Analyze(msg)
	if got.Score < 0.2 {
		t.Fatalf("expected at least the long-message contribution, got %f", got.Score)
	}
	if !hasFactor(got, "long-message") {
		t.Fatalf("expected long-message factor, got %v", got.Factors)
	}
}

func TestAnalyzeScoreCanExceedOne(t *testing.T) {
	msg := strings.Repeat("x", 201) +
		" my boss and my counselor both say I feel too worried about my job however I can't sleep"
	got := Analyze(msg)
	if got.Score <= 1.0 {
		t.Fatalf("expected unclamped score above 1.0 when all predicates fire, got %f", got.Score)
	}
	if got.Type != TypeVeryComplex {
		t.Fatalf("expected very-complex, got %s", got.Type)
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	msg := "My boss yelled at me and now I can't sleep, I'm so anxious"
	first := Analyze(msg)
	second := Analyze(msg)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Analyze not idempotent: %+v vs %+v", first, second)
	}
	if first.Score <= 0.8 {
		t.Fatalf("expected score above 0.8, got %f", first.Score)
	}
	if first.Type != TypeVeryComplex {
		t.Fatalf("expected very-complex, got %s", first.Type)
	}
}

func TestTypeBoundariesAreStrict(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0, TypeSimple},
		{0.3, TypeSimple},
		{0.31, TypeModerate},
		{0.6, TypeModerate},
		{0.61, TypeComplex},
		{0.8, TypeComplex},
		{0.81, TypeVeryComplex},
		{1.2, TypeVeryComplex},
	}
	for _, c := range cases {
		if got := typeFor(c.score); got != c.want {
			t.Fatalf("typeFor(%f) = %s, want %s", c.score, got, c.want)
		}
	}
}

func hasFactor(s Score, name string) bool {
	for _, f := range s.Factors {
		if f == name {
			return true
		}
	}
	return false
}
