package publish

import (
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// Node is a ProseMirror node as the Substack editor stores it.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark is an inline ProseMirror mark such as a link or bold text.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// ToProseMirror converts a markdown digest into a ProseMirror document. Headings, paragraphs,
// lists, block quotes, code blocks, rules, links and emphasis are mapped; anything else keeps
// its text.
func ToProseMirror(md string) Node {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	root := markdown.Parse([]byte(md), p)
	return Node{Type: "doc", Content: blocks(root.GetChildren())}
}

func blocks(nodes []ast.Node) []Node {
	var out []Node
	for _, n := range nodes {
		out = append(out, block(n)...)
	}
	return out
}

func block(n ast.Node) []Node {
	switch v := n.(type) {
	case *ast.Heading:
		return []Node{{Type: "heading", Attrs: map[string]any{"level": v.Level}, Content: inlines(v.Children, nil)}}
	case *ast.Paragraph:
		content := inlines(v.Children, nil)
		if len(content) == 0 {
			return nil
		}
		return []Node{{Type: "paragraph", Content: content}}
	case *ast.List:
		kind := "bullet_list"
		if v.ListFlags&ast.ListTypeOrdered != 0 {
			kind = "ordered_list"
		}
		return []Node{{Type: kind, Content: blocks(v.Children)}}
	case *ast.ListItem:
		return []Node{{Type: "list_item", Content: blocks(v.Children)}}
	case *ast.BlockQuote:
		return []Node{{Type: "blockquote", Content: blocks(v.Children)}}
	case *ast.CodeBlock:
		return []Node{{Type: "code_block", Content: []Node{{Type: "text", Text: strings.TrimRight(string(v.Literal), "\n")}}}}
	case *ast.HorizontalRule:
		return []Node{{Type: "horizontal_rule"}}
	}

	if c := n.AsContainer(); c != nil {
		return blocks(c.Children)
	}
	if l := n.AsLeaf(); l != nil && len(l.Literal) > 0 {
		return []Node{{Type: "paragraph", Content: []Node{{Type: "text", Text: string(l.Literal)}}}}
	}
	return nil
}

func inlines(nodes []ast.Node, marks []Mark) []Node {
	var out []Node
	for _, n := range nodes {
		out = append(out, inline(n, marks)...)
	}
	return out
}

func withMark(marks []Mark, m Mark) []Mark {
	out := make([]Mark, 0, len(marks)+1)
	out = append(out, marks...)
	return append(out, m)
}

func inline(n ast.Node, marks []Mark) []Node {
	switch v := n.(type) {
	case *ast.Text:
		if len(v.Literal) == 0 {
			return nil
		}
		return []Node{{Type: "text", Text: string(v.Literal), Marks: marks}}
	case *ast.Link:
		return inlines(v.Children, withMark(marks, Mark{Type: "link", Attrs: map[string]any{"href": string(v.Destination)}}))
	case *ast.Strong:
		return inlines(v.Children, withMark(marks, Mark{Type: "strong"}))
	case *ast.Emph:
		return inlines(v.Children, withMark(marks, Mark{Type: "em"}))
	case *ast.Code:
		return []Node{{Type: "text", Text: string(v.Literal), Marks: withMark(marks, Mark{Type: "code"})}}
	case *ast.Softbreak:
		return []Node{{Type: "text", Text: " ", Marks: marks}}
	case *ast.Hardbreak:
		return []Node{{Type: "hard_break"}}
	}

	if c := n.AsContainer(); c != nil {
		return inlines(c.Children, marks)
	}
	if l := n.AsLeaf(); l != nil && len(l.Literal) > 0 {
		return []Node{{Type: "text", Text: string(l.Literal), Marks: marks}}
	}
	return nil
}
