package markdown

import (
	"sync"

	internalstrings "github.com/amonks/issues/internal/strings"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
)

type renderer interface {
	Render(string) (string, error)
}

var (
	rendererMu sync.Mutex
	renderers  = map[int]renderer{}
)

// Render formats markdown text for terminal output.
func Render(width, indent int, input []byte) []byte {
	if len(input) == 0 {
		return nil
	}
	value := internalstrings.NormalizeNewlines(string(input))
	value = internalstrings.TrimTrailingNewlines(value)
	if internalstrings.IsBlank(value) {
		return nil
	}
	if width < 1 {
		width = 1
	}
	if indent < 0 {
		indent = 0
	}
	renderWidth := width - indent
	if renderWidth < 1 {
		renderWidth = 1
	}

	rendered := value
	if r := markdownRenderer(renderWidth); r != nil {
		formatted, err := r.Render(value)
		if err == nil {
			rendered = formatted
		}
	}
	rendered = internalstrings.TrimTrailingNewlines(rendered)
	if internalstrings.IsBlank(rendered) {
		return nil
	}
	return []byte(internalstrings.IndentBlock(rendered, indent))
}

// SafeRender is Render that falls back to the plain input if the renderer
// panics.
func SafeRender(width, indent int, input []byte) (out []byte) {
	defer func() {
		if recover() != nil {
			value := internalstrings.TrimTrailingNewlines(internalstrings.NormalizeNewlines(string(input)))
			out = []byte(internalstrings.IndentBlock(value, indent))
		}
	}()
	return Render(width, indent, input)
}

func markdownRenderer(width int) renderer {
	rendererMu.Lock()
	defer rendererMu.Unlock()
	if cached, ok := renderers[width]; ok {
		return cached
	}
	style := styles.ASCIIStyleConfig
	style.Item.BlockPrefix = "- "
	style.ImageText.Format = "Image: {{.text}} ->"
	created, err := glamour.NewTermRenderer(
		glamour.WithStyles(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	renderers[width] = created
	return created
}
