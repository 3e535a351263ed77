package publish

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/yf-chau/news-summary/internal/logger"
	"github.com/yf-chau/news-summary/internal/render"
)

// Theme styles the standalone HTML page.
type Theme struct {
	BackgroundColor string
	TextColor       string
	LinkColor       string
	BorderColor     string
	MaxWidth        string
	FontFamily      string
}

// DefaultTheme is a plain reading layout with CJK-friendly fonts.
func DefaultTheme() Theme {
	return Theme{
		BackgroundColor: "#f8fafc", // Slate-50
		TextColor:       "#1e293b", // Slate-800
		LinkColor:       "#3b82f6", // Blue-500
		BorderColor:     "#e2e8f0", // Slate-200
		MaxWidth:        "720px",
		FontFamily:      "system-ui, -apple-system, 'PingFang HK', 'Noto Sans TC', sans-serif",
	}
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="zh-Hant">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style type="text/css">{{.CSS}}</style>
</head>
<body>
  <div class="container">
    <h1>{{.Title}}</h1>
    {{if .Subtitle}}<p><em>{{.Subtitle}}</em></p>{{end}}
    {{.Body}}
  </div>
</body>
</html>
`))

func (t Theme) css() template.CSS {
	return template.CSS(fmt.Sprintf(`
      body { margin: 0; padding: 24px; background-color: %s; color: %s; font-family: %s; line-height: 1.7; }
      .container { max-width: %s; margin: 0 auto; background: #ffffff; border: 1px solid %s; border-radius: 8px; padding: 24px 32px; }
      a { color: %s; }
      h2 { border-bottom: 1px solid %s; padding-bottom: 4px; }
      h4 { margin-bottom: 4px; }
    `, t.BackgroundColor, t.TextColor, t.FontFamily, t.MaxWidth, t.BorderColor, t.LinkColor, t.BorderColor))
}

// RenderPage wraps the HTML rendering of markdown in a standalone page.
func RenderPage(title, markdown string, theme Theme) (string, error) {
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, struct {
		Title    string
		Subtitle string
		Body     template.HTML
		CSS      template.CSS
	}{
		Title:    title,
		Subtitle: Subtitle(markdown),
		Body:     template.HTML(render.ToHTML(markdown)),
		CSS:      theme.css(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}
	return buf.String(), nil
}

// FilePublisher writes the digest as <name>.md and <name>.html into Dir.
type FilePublisher struct {
	Dir   string
	Theme Theme
}

// NewFilePublisher creates a publisher writing into dir.
func NewFilePublisher(dir string) *FilePublisher {
	return &FilePublisher{Dir: dir, Theme: DefaultTheme()}
}

// Name implements Publisher.
func (p *FilePublisher) Name() string { return ProviderFile }

// Publish implements Publisher and returns the markdown path.
func (p *FilePublisher) Publish(_ context.Context, title, markdown string) (string, error) {
	name := FileName(title)

	mdPath, err := render.WriteDigestToFile("# "+title+"\n\n"+markdown, p.Dir, name+".md")
	if err != nil {
		return "", err
	}

	page, err := RenderPage(title, markdown, p.Theme)
	if err != nil {
		return "", err
	}
	htmlPath, err := render.WriteDigestToFile(page, p.Dir, name+".html")
	if err != nil {
		return "", err
	}

	logger.Info("Digest written", "markdown", mdPath, "html", htmlPath)
	return mdPath, nil
}

// FileName turns a title into a file-system friendly base name.
func FileName(title string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			dash = false
		case !dash && sb.Len() > 0:
			sb.WriteRune('-')
			dash = true
		}
	}
	name := strings.TrimSuffix(sb.String(), "-")
	if name == "" {
		return "digest"
	}
	return name
}
