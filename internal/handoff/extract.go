package handoff

import (
	"regexp"
	"strings"
)

var (
	numberedItem = regexp.MustCompile(`(?m)^\s*\d+[.)]?\s+(.+)$`)
	bulletItem   = regexp.MustCompile(`(?m)^\s*[-*]\s+(.+)$`)
)

// ExtractTasks pulls task items from unstructured text. It tries
// numbered lists, then bullet lists, then splitting on newlines,
// semicolons, or commas. Ambiguous input degrades to the whole text as
// a single task; extraction never fails.
func ExtractTasks(text string) []string {
	if matches := numberedItem.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		return collectMatches(matches)
	}
	if matches := bulletItem.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		return collectMatches(matches)
	}

	for _, delimiter := range []string{"\n", ";", ","} {
		if !strings.Contains(text, delimiter) {
			continue
		}
		var tasks []string
		for _, part := range strings.Split(text, delimiter) {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				tasks = append(tasks, trimmed)
			}
		}
		if len(tasks) > 0 {
			return tasks
		}
	}

	if trimmed := strings.TrimSpace(text); trimmed != "" {
		return []string{trimmed}
	}
	return nil
}

func collectMatches(matches [][]string) []string {
	tasks := make([]string, 0, len(matches))
	for _, m := range matches {
		tasks = append(tasks, strings.TrimSpace(m[1]))
	}
	return tasks
}
