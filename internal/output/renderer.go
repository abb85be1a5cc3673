package output

import (
	"io"

	"github.com/nethalo/pgreorg/internal/dispatch"
)

// ConnectionInfo describes the result of the connect subcommand's probe.
type ConnectionInfo struct {
	Address              string
	ServerVersion        string
	ExtensionInstalled   bool
	ConnectableDatabases []string
}

// Renderer defines the output interface.
type Renderer interface {
	RenderReport(report dispatch.Report)
	RenderConnection(info ConnectionInfo)
}

// NewRenderer creates a renderer for the given format.
func NewRenderer(format string, w io.Writer) Renderer {
	switch format {
	case "json":
		return &JSONRenderer{w: w}
	case "markdown":
		return &MarkdownRenderer{w: w}
	case "plain":
		return &PlainRenderer{w: w}
	default:
		return &TextRenderer{w: w}
	}
}
