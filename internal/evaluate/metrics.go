package evaluate

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/yf-chau/news-summary/internal/pipeline"
)

var (
	topicHeading = regexp.MustCompile(`(?m)^## `)
	linkLine     = regexp.MustCompile(`(?m)^\* \[[^\]]*\]\([^)]*\)`)
)

// DocumentMetrics are mechanical checks on a candidate document shown next to its score.
type DocumentMetrics struct {
	Topics         int      `json:"topics"`
	Links          int      `json:"links"`
	Words          int      `json:"words"` // CJK characters count as one word each
	RedactionMarks int      `json:"redaction_marks"`
	Warnings       []string `json:"warnings,omitempty"`
}

// Measure computes DocumentMetrics for an assembled markdown document.
func Measure(text string) DocumentMetrics {
	m := DocumentMetrics{
		Topics:         len(topicHeading.FindAllStringIndex(text, -1)),
		Links:          len(linkLine.FindAllStringIndex(text, -1)),
		Words:          countWords(text),
		RedactionMarks: strings.Count(text, pipeline.RedactionMark),
	}

	if m.Topics == 0 {
		m.Warnings = append(m.Warnings, "no topic headings")
	}
	if m.Topics > 0 && m.Links < m.Topics {
		m.Warnings = append(m.Warnings, "some topics have no source links")
	}
	if m.RedactionMarks > 0 {
		m.Warnings = append(m.Warnings, "redaction marks left in text")
	}
	return m
}

func countWords(text string) int {
	n := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			n++
			inWord = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if !inWord {
				n++
				inWord = true
			}
		default:
			inWord = false
		}
	}
	return n
}
