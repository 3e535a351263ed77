package llm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSONBlock is returned when a response does not hold exactly one fenced JSON block.
var ErrNoJSONBlock = errors.New("response must contain exactly one fenced JSON block")

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?[ \\t]*\\r?\\n?(.*?)```")

// ExtractJSON returns the body of the single fenced code block in text.
func ExtractJSON(text string) (string, error) {
	matches := fencedBlock.FindAllStringSubmatch(text, -1)
	switch len(matches) {
	case 0:
		return "", ErrNoJSONBlock
	case 1:
		body := strings.TrimSpace(matches[0][1])
		if body == "" {
			return "", fmt.Errorf("%w: block is empty", ErrNoJSONBlock)
		}
		return body, nil
	}
	return "", fmt.Errorf("%w: found %d blocks", ErrNoJSONBlock, len(matches))
}
