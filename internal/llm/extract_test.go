package llm

import (
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{"json fence", "Sure.\n```json\n{\"topics\": []}\n```\nDone.", `{"topics": []}`, false},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`, false},
		{"upper tag", "```JSON {\"a\": 1}```", `{"a": 1}`, false},
		{"no fence", "not json", "", true},
		{"raw json", `{"topics": []}`, "", true},
		{"two fences", "```json\n{}\n```\n```json\n{}\n```", "", true},
		{"empty fence", "```json\n\n```", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.text)
			if tt.wantErr {
				if !errors.Is(err, ErrNoJSONBlock) {
					t.Errorf("ExtractJSON() error = %v, want ErrNoJSONBlock", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}
