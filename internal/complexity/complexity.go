// Package complexity scores how demanding a chat message is to answer well.
// The score drives backend selection: cheap model for small talk, the
// reasoning model for long, layered, or emotionally loaded messages.
package complexity

import "strings"

// Score is the result of analyzing one message. It is derived
// deterministically from the message text and never mutated afterwards.
type Score struct {
	Score   float64
	Type    string
	Factors []string
}

// Complexity type labels, from cheapest to most demanding.
const (
	TypeSimple      = "simple"
	TypeModerate    = "moderate"
	TypeComplex     = "complex"
	TypeVeryComplex = "very-complex"
)

const longMessageChars = 200

var multiPartConnectors = []string{" and ", " but ", " however "}

var therapeuticKeywords = []string{
	"therapy", "counselor", "relationship", "trauma", "anxiety",
	"depression", "stress", "panic", "sleep", "insomnia",
}

var workplaceKeywords = []string{
	"work", "workplace", "job", "boss", "colleague", "office",
	"career", "employment", "manager",
}

var emotionalKeywords = []string{
	"feel", "feeling", "hurt", "sad", "angry", "frustrated",
	"worried", "scared", "upset", "anxious", "overwhelmed",
}

// Analyze scores a message. Pure function: no I/O, same input always
// produces the same output.
//
// Note: the factor weights can sum above 1.0 when several predicates
// co-occur. The type cut points below still assume a roughly [0,1] range;
// anything past 0.8 is simply very-complex. Kept as-is deliberately —
// normalizing would shift routing for exactly the messages that most need
// the deep backend.
func Analyze(message string) Score {
	text := strings.ToLower(message)
	var score float64
	var factors []string

	if len(message) > longMessageChars {
		score += 0.2
		factors = append(factors, "long-message")
	}

	if containsAny(text, multiPartConnectors) {
		score += 0.3
		factors = append(factors, "multi-part")
	}

	if containsAny(text, therapeuticKeywords) {
		score += 0.3
		factors = append(factors, "therapeutic-content")
	}

	if containsAny(text, workplaceKeywords) {
		score += 0.2
		factors = append(factors, "workplace-context")
	}

	if containsAny(text, emotionalKeywords) {
		score += 0.2
		factors = append(factors, "emotional-content")
	}

	return Score{Score: score, Type: typeFor(score), Factors: factors}
}

// typeFor maps a score to its label. Boundaries are strictly greater-than:
// a score of exactly 0.6 is moderate, not complex.
func typeFor(score float64) string {
	switch {
	case score > 0.8:
		return TypeVeryComplex
	case score > 0.6:
		return TypeComplex
	case score > 0.3:
		return TypeModerate
	default:
		return TypeSimple
	}
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
