package domain

import "strings"

// ExclusionPrefix marks a task as private to the user: titles (or smart-add
// notes) beginning with "." never reach the inference adapter.
const ExclusionPrefix = "."

// IsAIExcluded reports whether a task is shielded from inference. A task is
// excluded if the explicit flag is set, the stripped title begins with ".",
// or — for tasks whose title was auto-generated from free text — the notes
// begin with ".". This gate runs before any inference call.
func IsAIExcluded(t *Task) bool {
	if t.AIExcluded() {
		return true
	}
	if strings.HasPrefix(strings.TrimSpace(t.Title()), ExclusionPrefix) {
		return true
	}
	if t.TitleAutoGenerated() && strings.HasPrefix(strings.TrimSpace(t.Notes()), ExclusionPrefix) {
		return true
	}
	return false
}
