package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/yf-chau/news-summary/internal/core"
)

// ArticleLinks renders one "* [source：headline](url)" line per referenced article.
// Unknown ids are skipped.
func ArticleLinks(refs []core.ArticleRef, set *core.ArticleSet) string {
	var sb strings.Builder
	for _, ref := range refs {
		a, ok := set.Get(ref.ID)
		if !ok {
			continue
		}
		sb.WriteString(fmt.Sprintf("* [%s：%s](%s)\n", a.Source, a.Headline, a.URL))
	}
	return sb.String()
}

// AssembleDocument renders summaries paired by index with links. Each topic becomes
//
//	## <topic>
//
//	<summary>
//
//	#### Links
//
//	<links>
//
// in input order. The two slices must have the same length.
func AssembleDocument(summaries []core.TopicSummary, links []core.TopicLinks) (string, error) {
	if len(summaries) != len(links) {
		return "", fmt.Errorf("cannot assemble document: %d summaries but %d link lists", len(summaries), len(links))
	}

	var sb strings.Builder
	for i, s := range summaries {
		sb.WriteString("## ")
		sb.WriteString(s.Topic)
		sb.WriteString("\n\n")
		sb.WriteString(s.Summary)
		sb.WriteString("\n\n")
		sb.WriteString("#### Links\n\n")
		sb.WriteString(links[i].Links)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

// ToHTML converts a markdown digest to an HTML fragment. Links open in a new tab.
func ToHTML(md string) string {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	p := parser.NewWithExtensions(extensions)

	opts := html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank}
	renderer := html.NewRenderer(opts)

	return string(markdown.ToHTML([]byte(md), p, renderer))
}

// WriteDigestToFile writes content to outputDir/filename, creating the directory.
func WriteDigestToFile(content, outputDir, filename string) (string, error) {
	if outputDir == "" {
		outputDir = "digests"
	}

	err := os.MkdirAll(outputDir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	filePath := filepath.Join(outputDir, filename)

	err = os.WriteFile(filePath, []byte(content), 0644)
	if err != nil {
		return "", fmt.Errorf("failed to write digest file %s: %w", filePath, err)
	}

	return filePath, nil
}
