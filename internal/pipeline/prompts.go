package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/yf-chau/news-summary/internal/core"
	"github.com/yf-chau/news-summary/internal/schema"
)

// SanitizeVariant selects the redaction prompt.
type SanitizeVariant string

const (
	// SanitizeEditor asks for light-touch redaction of text that might trigger censorship.
	SanitizeEditor SanitizeVariant = "editor"
	// SanitizeModerator asks for thorough redaction so nothing sensitive stays readable.
	SanitizeModerator SanitizeVariant = "moderator"
)

// RedactionMark replaces every redacted span.
const RedactionMark = "^^^^^"

// CourtCaseCap is the most court-case topics the extraction prompt allows for k topics.
func CourtCaseCap(k int) int {
	return int(math.Round(float64(k) * 0.4))
}

func writeSchema(sb *strings.Builder, doc schema.Document) {
	sb.WriteString("Your output should be in JSON format, inside a single ```json fenced block.\n")
	sb.WriteString("Schema:\n")
	sb.WriteString(schema.Describe(doc.Schema()))
	sb.WriteString("\n")
}

func mustJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

type headlineSummary struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
}

// BuildTopicsPrompt asks for the k major topics across articles.
func BuildTopicsPrompt(articles []core.Article, k int) string {
	list := make([]headlineSummary, 0, len(articles))
	for _, a := range articles {
		list = append(list, headlineSummary{Headline: a.Headline, Summary: a.Summary})
	}

	var sb strings.Builder
	sb.WriteString("You are a news editor for a news website. Below is a list of news article headlines and summaries. ")
	sb.WriteString(fmt.Sprintf("Identify the top %d major topics that were reported.\n\n", k))

	sb.WriteString("When choosing the major topics, you should:\n")
	sb.WriteString("1. Consider the number of articles reporting on the issue. More reporting indicates wider public interest.\n")
	sb.WriteString("2. Consider the issue's impact on society as a whole and on the economy.\n")
	sb.WriteString("3. Give policy proposals and policy discussion higher priority. It is often useful to combine several related issues under one overarching theme.\n")
	sb.WriteString("4. Never merge court cases about different issues into a single topic.\n")
	sb.WriteString("5. Only include court cases that have a widespread impact on society.\n")
	sb.WriteString(fmt.Sprintf("6. In any case, no more than %d topics may be about court cases.\n\n", CourtCaseCap(k)))

	sb.WriteString("Summarise each topic as a concise, news-headline style label.\n\n")
	sb.WriteString("Articles:\n")
	sb.WriteString(mustJSON(list))
	sb.WriteString("\n\n")

	writeSchema(&sb, schema.TopicsList{})
	return sb.String()
}

// BuildAssignmentPrompt asks the model to group every headline under one of topics.
func BuildAssignmentPrompt(topics []string, refs []core.ArticleRef) string {
	var sb strings.Builder
	sb.WriteString("You are a news editor for a news website. These are the major themes we will cover.\n\n")
	sb.WriteString("Major Themes:\n")
	sb.WriteString(mustJSON(schema.TopicsList{Topics: topics}))
	sb.WriteString("\n\n")

	sb.WriteString("Below is a list of headlines with their article uuid. Group each one under the major theme it belongs to. ")
	sb.WriteString(fmt.Sprintf("If a headline does not fit any of the major themes, group it under %q. ", core.OtherTopic))
	sb.WriteString("Copy every uuid exactly as given and use each article once.\n\n")

	sb.WriteString("Headlines & uuid:\n")
	sb.WriteString(mustJSON(refs))
	sb.WriteString("\n\n")

	writeSchema(&sb, schema.ArticlesByTopic{})
	return sb.String()
}

// BuildSanitizePrompt asks for the article text with sensitive spans replaced by RedactionMark.
func BuildSanitizePrompt(variant SanitizeVariant, topic, articleText string) string {
	var sb strings.Builder
	switch variant {
	case SanitizeModerator:
		sb.WriteString("You are a sensitive content moderator. ")
		sb.WriteString(fmt.Sprintf("You will be given several newspaper articles related to the topic %s, each with its headline and text.\n\n", topic))
		sb.WriteString("The articles contain sensitive content that needs to be redacted. Thoroughly redact the content that triggers the censorship mechanism. ")
		sb.WriteString(fmt.Sprintf("Replace each redacted span with %s. ", RedactionMark))
		sb.WriteString("Make no other edits beyond what is needed so that no explicit or sensitive content remains readable.\n\n")
	default:
		sb.WriteString("You are a news editor for a news website. ")
		sb.WriteString(fmt.Sprintf("You will be given several articles related to the topic %s, each with its headline and text.\n\n", topic))
		sb.WriteString("The articles might contain sensitive content that could trigger censorship. Review them and redact only that content. ")
		sb.WriteString(fmt.Sprintf("Replace each redacted span with %s. ", RedactionMark))
		sb.WriteString("Do not make any other edits.\n\n")
	}

	sb.WriteString("Here are the articles:\n")
	sb.WriteString(articleText)
	sb.WriteString("\n\n")
	sb.WriteString("Your output should be plain text. Return the redacted articles only and nothing else.\n")
	return sb.String()
}

// BuildSummaryPrompt asks for a summary of one topic from its articles.
func BuildSummaryPrompt(topic, articleText string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are a news editor for a news website. You are going to write a news summary for the topic: %s. ", topic))
	sb.WriteString("You will be given the articles related to the topic, each with its headline and text.\n\n")

	sb.WriteString("When writing the summary, you should:\n")
	sb.WriteString("1. Only use material available in the articles provided.\n")
	sb.WriteString("2. Give a brief summary of the topic.\n")
	sb.WriteString("3. Include quotes from people in the articles as much as possible.\n")
	sb.WriteString("4. When a quote responds to another person's quote, include both.\n")
	sb.WriteString("5. Add no comments that are not present in the articles.\n")
	sb.WriteString("6. Some parts of the articles may be redacted with the ^ character. Write the summary without referring to the redacted content.\n")
	sb.WriteString("7. Write the summary in English.\n\n")

	sb.WriteString("Here are the articles:\n")
	sb.WriteString(articleText)
	sb.WriteString("\n\n")

	writeSchema(&sb, schema.TopicSummary{})
	return sb.String()
}

var characterSets = map[core.Language]string{
	core.TraditionalChinese: "Traditional Chinese",
	core.SimplifiedChinese:  "Simplified Chinese",
	core.English:            "English",
}

// BuildSubeditPrompt asks for a style pass over every summary of one attempt.
func BuildSubeditPrompt(summaries []core.TopicSummary, lang core.Language) string {
	charset, ok := characterSets[lang]
	if !ok {
		charset = characterSets[core.TraditionalChinese]
	}

	var sb strings.Builder
	sb.WriteString("Please act as a news subeditor. Edit the following news summaries for consistent style and presentation while strictly following the guidelines below. ")
	sb.WriteString("Keep the original information, keep every topic paired with its own summary, and do not add new content or change the core meaning.\n\n")

	sb.WriteString("**Style Guidelines:**\n")
	sb.WriteString(fmt.Sprintf("1. **Character Set:** Use %s primarily. English is acceptable for proper nouns that lack a direct translation. No other languages may be used; delete or translate anything that does not comply.\n", charset))
	sb.WriteString("2. **Topic title:** The topic title must make sense, match its summary and read as a concise news headline.\n")
	sb.WriteString("3. **Person Titles:** Title each individual consistently throughout the summaries.\n")
	sb.WriteString("4. **Title Usage:** Avoid unnecessary honorifics such as 先生 and 女士. Use concise, professional titles where appropriate.\n")
	sb.WriteString("5. **Date Format:** Replace relative terms like \"today\", \"yesterday\" and \"tomorrow\" with specific dates.\n")
	sb.WriteString("6. **Summary Length:** Aim for 250-600 words per topic summary, favouring concise, information-dense writing.\n\n")

	sb.WriteString(fmt.Sprintf("Return exactly %d topics, in the same order as the input. Copy each input's id unchanged onto its edited version.\n\n", len(summaries)))

	input := schema.EditedSummaries{Topics: make([]schema.EditedSummary, len(summaries))}
	for i, s := range summaries {
		input.Topics[i] = schema.EditedSummary{ID: i + 1, Topic: s.Topic, Summary: s.Summary}
	}
	sb.WriteString("**Input Summary:**\n")
	sb.WriteString(mustJSON(input))
	sb.WriteString("\n\n")

	writeSchema(&sb, schema.EditedSummaries{})
	return sb.String()
}
