// Package discordmd normalizes model-generated Markdown into the subset
// Discord renders reliably inside embeds and messages.
//
// LLM output tends to use the full GFM feature set. Discord understands a
// narrower dialect, so unsupported constructs are mapped to approximations:
//   - Headings become bold lines
//   - Tables become readable list blocks
//   - Images become links
//   - Raw HTML is stripped
//   - Horizontal rules become a plain divider line
package discordmd

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// EmbedDescriptionLimit is Discord's cap on embed description length.
const EmbedDescriptionLimit = 4096

// Convert rewrites standard Markdown into Discord-compatible Markdown.
func Convert(markdown string) string {
	source := []byte(markdown)
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(source))

	r := &renderer{source: source}
	r.walkBlock(doc)
	return strings.TrimRight(r.buf.String(), "\n ")
}

// TruncateForEmbed shortens s to at most max runes, appending an ellipsis
// when content was cut. A max of zero means EmbedDescriptionLimit.
func TruncateForEmbed(s string, max int) string {
	if max <= 0 {
		max = EmbedDescriptionLimit
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimRight(string(runes[:max-1]), "\n ") + "…"
}

type renderer struct {
	source    []byte
	buf       bytes.Buffer
	listDepth int
}

// ---------------------------------------------------------------------------
// Markdown escaping
// ---------------------------------------------------------------------------

// escapeMarkdown protects literal text against Discord re-interpreting it.
func escapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\', '`', '*', '_', '~', '|':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Block-level rendering
// ---------------------------------------------------------------------------

func (r *renderer) walkBlock(n ast.Node) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		r.block(c)
	}
}

func (r *renderer) block(node ast.Node) {
	switch n := node.(type) {
	case *ast.Document:
		r.walkBlock(n)

	case *ast.Heading:
		r.buf.WriteString("**")
		r.inlines(n)
		r.buf.WriteString("**\n\n")

	case *ast.Paragraph:
		r.inlines(n)
		r.buf.WriteString("\n\n")

	case *ast.TextBlock:
		r.inlines(n)
		r.buf.WriteString("\n")

	case *ast.Blockquote:
		sub := &renderer{source: r.source}
		sub.walkBlock(n)
		quoted := strings.TrimRight(sub.buf.String(), "\n ")
		for _, line := range strings.Split(quoted, "\n") {
			r.buf.WriteString("> ")
			r.buf.WriteString(line)
			r.buf.WriteByte('\n')
		}
		r.buf.WriteByte('\n')

	case *ast.List:
		r.list(n)

	case *ast.ListItem:
		// Handled inside list(); fallback.
		r.walkBlock(n)

	case *ast.FencedCodeBlock:
		lang := string(n.Language(r.source))
		fmt.Fprintf(&r.buf, "```%s\n", lang)
		r.writeLines(n)
		r.buf.WriteString("```\n\n")

	case *ast.CodeBlock:
		r.buf.WriteString("```\n")
		r.writeLines(n)
		r.buf.WriteString("```\n\n")

	case *ast.ThematicBreak:
		r.buf.WriteString("──────────\n\n")

	case *ast.HTMLBlock:
		// Discord shows raw HTML literally; drop it.

	default:
		// GFM table
		if t, ok := node.(*east.Table); ok {
			r.table(t)
			return
		}
		if node.HasChildren() {
			r.walkBlock(node)
		}
	}
}

// writeLines writes the source lines of a code block verbatim.
func (r *renderer) writeLines(n ast.Node) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		r.buf.Write(seg.Value(r.source))
	}
}

// ---------------------------------------------------------------------------
// Inline rendering
// ---------------------------------------------------------------------------

func (r *renderer) inlines(n ast.Node) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		r.inline(c)
	}
}

func (r *renderer) inline(node ast.Node) {
	switch n := node.(type) {
	case *ast.Text:
		r.buf.WriteString(escapeMarkdown(string(n.Text(r.source))))
		if n.SoftLineBreak() || n.HardLineBreak() {
			r.buf.WriteByte('\n')
		}

	case *ast.String:
		r.buf.WriteString(escapeMarkdown(string(n.Value)))

	case *ast.Emphasis:
		marker := "*"
		if n.Level == 2 {
			marker = "**"
		}
		r.buf.WriteString(marker)
		r.inlines(n)
		r.buf.WriteString(marker)

	case *ast.CodeSpan:
		code := r.codeSpanText(n)
		if strings.Contains(code, "`") {
			fmt.Fprintf(&r.buf, "``%s``", code)
		} else {
			fmt.Fprintf(&r.buf, "`%s`", code)
		}

	case *ast.Link:
		r.buf.WriteByte('[')
		r.inlines(n)
		fmt.Fprintf(&r.buf, "](%s)", string(n.Destination))

	case *ast.AutoLink:
		r.buf.WriteString(string(n.URL(r.source)))

	case *ast.Image:
		// Discord can't inline arbitrary images in text; link instead.
		alt := r.textContent(n)
		if alt == "" {
			alt = string(n.Destination)
		}
		fmt.Fprintf(&r.buf, "[%s](%s)", escapeMarkdown(alt), string(n.Destination))

	case *ast.RawHTML:
		// Stripped.

	default:
		// GFM extensions
		switch v := node.(type) {
		case *east.Strikethrough:
			r.buf.WriteString("~~")
			r.inlines(v)
			r.buf.WriteString("~~")
		case *east.TaskCheckBox:
			if v.IsChecked {
				r.buf.WriteString("✅ ") // ✅
			} else {
				r.buf.WriteString("☐ ") // ☐
			}
		default:
			if node.HasChildren() {
				r.inlines(node)
			}
		}
	}
}

func (r *renderer) codeSpanText(n ast.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Text(r.source))
		case *ast.String:
			buf.Write(t.Value)
		}
	}
	return buf.String()
}

// textContent returns the plain-text content of a node tree.
func (r *renderer) textContent(n ast.Node) string {
	var buf bytes.Buffer
	r.collectText(n, &buf)
	return buf.String()
}

func (r *renderer) collectText(node ast.Node, buf *bytes.Buffer) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Text(r.source))
		case *ast.String:
			buf.Write(t.Value)
		default:
			r.collectText(c, buf)
		}
	}
}

// ---------------------------------------------------------------------------
// List rendering
// ---------------------------------------------------------------------------

func (r *renderer) list(n *ast.List) {
	idx := 0
	if n.Start > 0 {
		idx = int(n.Start) - 1
	}
	indent := strings.Repeat("  ", r.listDepth)

	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		item, ok := child.(*ast.ListItem)
		if !ok {
			continue
		}
		if n.IsOrdered() {
			idx++
			fmt.Fprintf(&r.buf, "%s%d. ", indent, idx)
		} else {
			r.buf.WriteString(indent)
			r.buf.WriteString("• ") // •
		}
		r.listItemContent(item)
		r.buf.WriteByte('\n')
	}
	if r.listDepth == 0 {
		r.buf.WriteByte('\n')
	}
}

func (r *renderer) listItemContent(item *ast.ListItem) {
	first := true
	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		switch n := c.(type) {
		case *ast.Paragraph:
			if !first {
				r.buf.WriteByte('\n')
				r.buf.WriteString(strings.Repeat("  ", r.listDepth+1))
			}
			r.inlines(n)
			first = false
		case *ast.TextBlock:
			if !first {
				r.buf.WriteByte('\n')
				r.buf.WriteString(strings.Repeat("  ", r.listDepth+1))
			}
			r.inlines(n)
			first = false
		case *ast.List:
			r.buf.WriteByte('\n')
			r.listDepth++
			r.list(n)
			r.listDepth--
		default:
			r.block(c)
			first = false
		}
	}
}

// ---------------------------------------------------------------------------
// Table rendering (GFM)
// ---------------------------------------------------------------------------

func (r *renderer) table(t *east.Table) {
	var rows [][]string
	headerIdx := -1

	for child := t.FirstChild(); child != nil; child = child.NextSibling() {
		var cells []string
		isHeader := false

		switch row := child.(type) {
		case *east.TableHeader:
			isHeader = true
			for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
				cells = append(cells, r.textContent(cell))
			}
		case *east.TableRow:
			for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
				cells = append(cells, r.textContent(cell))
			}
		default:
			continue
		}
		if isHeader {
			headerIdx = len(rows)
		}
		rows = append(rows, cells)
	}

	if len(rows) == 0 {
		return
	}

	// Normalise column count.
	numCols := 0
	for _, row := range rows {
		if len(row) > numCols {
			numCols = len(row)
		}
	}
	for i := range rows {
		for len(rows[i]) < numCols {
			rows[i] = append(rows[i], "")
		}
	}

	headers := make([]string, numCols)
	dataRows := rows
	if headerIdx >= 0 && headerIdx < len(rows) {
		copy(headers, rows[headerIdx])
		dataRows = append(rows[:headerIdx], rows[headerIdx+1:]...)
	}
	for i := range headers {
		if strings.TrimSpace(headers[i]) == "" {
			headers[i] = fmt.Sprintf("Column %d", i+1)
		}
	}

	// Fallback for malformed "header-only" tables: keep one shell row.
	if len(dataRows) == 0 {
		dataRows = [][]string{make([]string, numCols)}
	}

	for i, row := range dataRows {
		fmt.Fprintf(&r.buf, "**%d.**\n", i+1)
		for j, cell := range row {
			r.buf.WriteString("• **")
			r.buf.WriteString(escapeMarkdown(headers[j]))
			r.buf.WriteString("**: ")
			r.buf.WriteString(escapeMarkdown(cell))
			r.buf.WriteByte('\n')
		}
		if i < len(dataRows)-1 {
			r.buf.WriteByte('\n')
		}
	}
	r.buf.WriteByte('\n')
}
