package orchestrator

import "strings"

// smallTalkPhrases is the fixed set of normalized queries that skip the
// planner entirely and emit a static chat response.
var smallTalkPhrases = map[string]string{
	"hi":          "Hey there! What can I help you with?",
	"hello":       "Hello! What can I help you with?",
	"hey":         "Hey! What can I help you with?",
	"thanks":      "You're welcome!",
	"thank you":   "You're welcome!",
	"good morning": "Good morning! Ready when you are.",
	"good night":  "Good night!",
	"how are you": "Doing well, thanks for asking. What can I help with?",
}

// DetectFastPath returns a static response and true if query normalizes to
// a known small-talk phrase.
func DetectFastPath(query string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(query))
	normalized = strings.Trim(normalized, "!.? ")
	resp, ok := smallTalkPhrases[normalized]
	return resp, ok
}
