package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yf-chau/news-summary/internal/core"
)

func testSet(t *testing.T) *core.ArticleSet {
	t.Helper()
	set, err := core.NewArticleSet([]core.Article{
		{ID: "a1", Headline: "立法會三讀通過條例", Source: "集誌社", URL: "https://example.com/a1"},
		{ID: "a2", Headline: "Appeal dismissed", Source: "法庭線", URL: "https://example.com/a2"},
	})
	if err != nil {
		t.Fatalf("NewArticleSet failed: %v", err)
	}
	return set
}

func TestArticleLinks(t *testing.T) {
	refs := []core.ArticleRef{{ID: "a2"}, {ID: "missing"}, {ID: "a1"}}

	got := ArticleLinks(refs, testSet(t))
	want := "* [法庭線：Appeal dismissed](https://example.com/a2)\n" +
		"* [集誌社：立法會三讀通過條例](https://example.com/a1)\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ArticleLinks() mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleDocument(t *testing.T) {
	summaries := []core.TopicSummary{
		{Topic: "Legislation", Summary: "The council passed the bill."},
		{Topic: "Courts", Summary: "An appeal was dismissed."},
	}
	links := []core.TopicLinks{
		{Topic: "Legislation", Links: "* [a](u1)\n"},
		{Topic: "Courts", Links: "* [b](u2)\n"},
	}

	got, err := AssembleDocument(summaries, links)
	if err != nil {
		t.Fatalf("AssembleDocument failed: %v", err)
	}

	want := "## Legislation\n\nThe council passed the bill.\n\n#### Links\n\n* [a](u1)\n\n\n" +
		"## Courts\n\nAn appeal was dismissed.\n\n#### Links\n\n* [b](u2)\n\n\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("AssembleDocument() mismatch (-want +got):\n%s", diff)
	}

	// Topic order is preserved.
	if strings.Index(got, "## Legislation") > strings.Index(got, "## Courts") {
		t.Error("topics were reordered")
	}
}

func TestAssembleDocument_LengthMismatch(t *testing.T) {
	_, err := AssembleDocument([]core.TopicSummary{{Topic: "A"}}, nil)
	if err == nil {
		t.Fatal("expected error for mismatched lengths")
	}
}

func TestAssembleDocument_Empty(t *testing.T) {
	got, err := AssembleDocument(nil, nil)
	if err != nil || got != "" {
		t.Errorf("AssembleDocument(nil, nil) = %q, %v", got, err)
	}
}

func TestToHTML(t *testing.T) {
	out := ToHTML("## Courts\n\n* [法庭線：Appeal](https://example.com/a2)\n")

	if !strings.Contains(out, `<h2 id="courts">Courts</h2>`) {
		t.Errorf("expected heading with id, got %s", out)
	}
	if !strings.Contains(out, `target="_blank"`) {
		t.Errorf("expected links to open in a new tab, got %s", out)
	}
}

func TestWriteDigestToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")

	path, err := WriteDigestToFile("# Digest\n", dir, "digest.md")
	if err != nil {
		t.Fatalf("WriteDigestToFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read digest file: %v", err)
	}
	if string(content) != "# Digest\n" {
		t.Errorf("unexpected content %q", content)
	}
}
