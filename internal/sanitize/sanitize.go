// Package sanitize implements C2: stripping model-framing chrome and any
// residual marker text from a cleaned completion before it is persisted or
// shown to a user, adapted from the same marker-stripping regexps the
// metadata package reuses from digitallysavvy-go-ai's extract_json.go,
// generalized to role-prefix and instruction-delimiter removal.
package sanitize

import (
	"regexp"
	"strings"
)

// FallbackMessage is substituted when sanitization leaves nothing but
// whitespace, the last-resort content per the error handling design.
const FallbackMessage = "I'm here, but I wasn't able to put that into words. Could you try rephrasing?"

var (
	rolePrefixes = regexp.MustCompile(`(?im)^\s*(user|human|assistant|system)\s*:\s*`)

	instructionBrackets = regexp.MustCompile(`(?i)\[/?INST\]|</?s>`)

	codeFenceWithMarker = regexp.MustCompile("(?is)```[a-z]*\\n?.*?(EMOTION_LOG|TASK_INFERENCE).*?```")

	residualMarker = regexp.MustCompile(`(?i)(EMOTION_LOG|TASK_INFERENCE)\s*:?\s*\{[^}]*\}?`)
)

// Sanitize removes model chrome from text and guarantees a non-empty,
// non-whitespace-only result.
func Sanitize(text string) string {
	out := codeFenceWithMarker.ReplaceAllString(text, "")
	out = rolePrefixes.ReplaceAllString(out, "")
	out = instructionBrackets.ReplaceAllString(out, "")
	out = residualMarker.ReplaceAllString(out, "")
	out = strings.TrimSpace(out)

	if out == "" {
		return FallbackMessage
	}
	return out
}
