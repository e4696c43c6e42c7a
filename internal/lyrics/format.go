package lyrics

import (
	"regexp"
	"strings"
)

// MaxMessageLength is Telegram's text message limit.
const MaxMessageLength = 4096

var (
	sectionHeaderRegex = regexp.MustCompile(`\[(.*?)\]`)
	lineBoundaryRegex  = regexp.MustCompile(`([a-z,!?.)])([A-Z])`)
	excessBreaksRegex  = regexp.MustCompile(`\n{3,}`)
)

// Format prepares scraped lyrics for Telegram Markdown delivery: section
// headers like [Chorus] become bold on their own line, and missing line
// breaks between squashed lines are repaired at lower/upper case boundaries.
func Format(raw string) string {
	text := sectionHeaderRegex.ReplaceAllString(raw, "\n\n*[$1]*\n")
	text = lineBoundaryRegex.ReplaceAllString(text, "$1\n$2")
	text = excessBreaksRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// SplitMessage splits text into chunks of at most maxLength characters,
// breaking on line boundaries. maxLength <= 0 means MaxMessageLength.
// Lines longer than the limit are hard-cut.
func SplitMessage(text string, maxLength int) []string {
	if maxLength <= 0 {
		maxLength = MaxMessageLength
	}

	var parts []string
	var current strings.Builder

	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLength {
			if current.Len() > 0 {
				parts = append(parts, strings.TrimRight(current.String(), "\n"))
				current.Reset()
			}
			parts = append(parts, line[:maxLength])
			line = line[maxLength:]
		}
		if current.Len() > 0 && current.Len()+len(line)+1 > maxLength {
			parts = append(parts, strings.TrimRight(current.String(), "\n"))
			current.Reset()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}

	if strings.TrimSpace(current.String()) != "" {
		parts = append(parts, strings.TrimRight(current.String(), "\n"))
	}
	return parts
}
