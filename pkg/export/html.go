package export

import (
	"bytes"
	"fmt"
	stdhtml "html"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"

	terrors "github.com/odvcencio/tern/pkg/errors"
	"github.com/odvcencio/tern/pkg/history"
)

// codeStyle is the chroma style used for exported code blocks.
const codeStyle = "github"

// HTML renders the transcript as a standalone HTML page with
// highlighted code blocks.
func HTML(session *history.Session, entries []history.TranscriptEntry) ([]byte, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(
			renderer.WithNodeRenderers(util.Prioritized(&codeHTMLRenderer{}, 200)),
		),
	)

	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(session, entries)), &body); err != nil {
		return nil, terrors.Wrap(err, terrors.ErrCodeExportRender, "render transcript html")
	}

	title := "tern session"
	if session != nil && session.ID != "" {
		title += " " + session.ID
	}

	var page bytes.Buffer
	fmt.Fprintf(&page, htmlHeader, stdhtml.EscapeString(title))
	page.Write(body.Bytes())
	page.WriteString(htmlFooter)
	return page.Bytes(), nil
}

// codeHTMLRenderer replaces goldmark's default code block output with
// chroma-highlighted markup. It takes priority over the built-in HTML
// renderer for both fenced and indented code blocks.
type codeHTMLRenderer struct{}

func (r *codeHTMLRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderCode)
	reg.Register(ast.KindCodeBlock, r.renderCode)
}

func (r *codeHTMLRenderer) renderCode(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	var language string
	if fenced, ok := node.(*ast.FencedCodeBlock); ok {
		language = string(fenced.Language(source))
	}

	var code strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		code.Write(line.Value(source))
	}

	var highlighted bytes.Buffer
	if err := highlightCode(&highlighted, code.String(), language); err != nil {
		w.WriteString("<pre><code>")
		w.WriteString(stdhtml.EscapeString(code.String()))
		w.WriteString("</code></pre>\n")
		return ast.WalkSkipChildren, nil
	}
	w.Write(highlighted.Bytes())
	return ast.WalkSkipChildren, nil
}

func highlightCode(w io.Writer, code, language string) error {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(codeStyle)
	if style == nil {
		style = styles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return err
	}
	return chromahtml.New(chromahtml.TabWidth(4)).Format(w, style, iterator)
}

const htmlHeader = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; max-width: 52rem; margin: 2rem auto; padding: 0 1rem; color: #1f2328; }
pre { padding: 0.8rem; border-radius: 6px; overflow-x: auto; }
blockquote { color: #59636e; border-left: 0.25rem solid #d1d9e0; margin-left: 0; padding-left: 1rem; }
h1, h3 { border-bottom: 1px solid #d1d9e0; padding-bottom: 0.3rem; }
</style>
</head>
<body>
`

const htmlFooter = `</body>
</html>
`
