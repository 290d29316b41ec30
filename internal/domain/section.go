package domain

import "strings"

// ExtractSection returns the heading-delimited part of a markdown document whose
// heading contains query (case-insensitive). The section runs until the next
// level-1 or level-2 heading that does not match query. ok is false when no
// heading matches.
func ExtractSection(content, query string) (section string, ok bool) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return "", false
	}

	var out []string
	inSection := false
	for _, line := range strings.Split(content, "\n") {
		heading := strings.HasPrefix(line, "#")
		switch {
		case heading && strings.Contains(strings.ToLower(line), query):
			// a later matching heading extends the section
			inSection = true
		case inSection && heading && headingLevel(line) <= 2:
			return strings.TrimRight(strings.Join(out, "\n"), "\n"), true
		}
		if inSection {
			out = append(out, line)
		}
	}

	if len(out) == 0 {
		return "", false
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n"), true
}

// Headings lists the heading lines of a markdown document
func Headings(content string) []string {
	var headings []string
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "#") {
			headings = append(headings, strings.TrimSpace(strings.TrimLeft(line, "#")))
		}
	}
	return headings
}

func headingLevel(line string) int {
	return len(line) - len(strings.TrimLeft(line, "#"))
}
