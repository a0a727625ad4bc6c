package orchestrator

import (
	"regexp"
	"strings"
)

// defaultStopSequences is the reduced, more restrictive set spec.md §9
// mandates between the two near-duplicate source implementations.
var defaultStopSequences = []string{
	"USER:", "\nUSER:",
	"Human:", "\nHuman:",
	"Assistant:", "\nAssistant:",
	"[INST]", "[/INST]", "<s>", "</s>",
	"---", "***",
	"Example:", "Note:", "Source:",
}

var blankLineRun = regexp.MustCompile(`\n[ \t]*\n[ \t]*\n`)

// findStopSequence returns the earliest index in buf at which a stop
// sequence begins, or (-1, false) if none is present.
func findStopSequence(buf string) (int, bool) {
	earliest := -1
	for _, seq := range defaultStopSequences {
		if idx := strings.Index(buf, seq); idx != -1 {
			if earliest == -1 || idx < earliest {
				earliest = idx
			}
		}
	}
	if loc := blankLineRun.FindStringIndex(buf); loc != nil {
		if earliest == -1 || loc[0] < earliest {
			earliest = loc[0]
		}
	}
	if earliest == -1 {
		return -1, false
	}
	return earliest, true
}
