package runtime

import "strings"

// Answer classification labels attached to final agent turns so downstream
// presentation layers can badge responses without re-parsing free text.
const (
	ClassSuccess = "success"
	ClassInfo    = "info"
	ClassWarning = "warning"
	ClassError   = "error"
)

var (
	errorMarkers = []string{
		"error", "failed", "could not", "couldn't", "unable to",
		"not found", "invalid", "incorrect", "cannot", "exception",
	}
	warningMarkers = []string{
		"blocked", "overdue", "high priority", "urgent", "pending",
		"attention", "limited", "quota", "exceeded", "missing", "incomplete",
	}
	successMarkers = []string{
		"created", "scheduled", "completed", "updated", "deleted",
		"successfully", "done", "finished", "saved", "confirmed", "added",
	}
)

// classify labels a final answer based on its content and whether any tool
// call failed during the session. Two or more warning markers qualify as a
// warning; a single one reads as incidental phrasing.
func classify(message string, toolFailed bool) string {
	lower := strings.ToLower(message)

	for _, m := range errorMarkers {
		if strings.Contains(lower, m) {
			return ClassError
		}
	}

	warnings := 0
	for _, m := range warningMarkers {
		if strings.Contains(lower, m) {
			warnings++
		}
	}
	if warnings >= 2 {
		return ClassWarning
	}

	for _, m := range successMarkers {
		if strings.Contains(lower, m) {
			return ClassSuccess
		}
	}
	if toolFailed {
		return ClassWarning
	}
	return ClassInfo
}
