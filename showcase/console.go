package showcase

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/go-loom/loom/pkg/engine"
	"github.com/go-loom/loom/pkg/render"
)

// ConsoleAdapter renders the tree as indented text and logs patch batches.
// It acknowledges every patch immediately.
type ConsoleAdapter struct {
	Logger zerolog.Logger
	// Engine is set after construction so patches can be acknowledged.
	Engine *engine.Engine
}

// Mount implements engine.Adapter.
func (a *ConsoleAdapter) Mount(root *render.Node) {
	var sb strings.Builder
	writeNode(&sb, root, 0)
	fmt.Print(sb.String())
	a.Logger.Info().Int("nodes", render.Count(root)).Msg("mounted")
}

// Apply implements engine.Adapter.
func (a *ConsoleAdapter) Apply(patches []engine.Patch) {
	for _, p := range patches {
		a.Logger.Info().
			Str("node", p.NodeID).
			Str("kind", p.Kind).
			Str("content", contentLine(p.Content)).
			Msg("patch")
	}
	if a.Engine == nil {
		return
	}
	// Apply runs under the engine gate; acknowledge from outside it.
	go func() {
		for _, p := range patches {
			a.Engine.Ack(p.Handle)
		}
	}()
}

func writeNode(sb *strings.Builder, n *render.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(sb, "%s%s#%s %s\n", indent, n.Kind, n.ID, contentLine(n.Content))
	for _, child := range n.Children {
		writeNode(sb, child, depth+1)
	}
}

func contentLine(c render.Content) string {
	switch v := c.(type) {
	case render.TextContent:
		return fmt.Sprintf("%q", v.Text)
	case render.ButtonContent:
		return fmt.Sprintf("[%s]", v.Label)
	case render.ToggleContent:
		return fmt.Sprintf("toggle=%v -> %s", v.Value, v.BindPath)
	case render.InputContent:
		return fmt.Sprintf("input=%q -> %s", v.Value, v.BindPath)
	case render.ImageContent:
		return v.URL
	case render.SectionContent:
		return v.Title
	case render.ContainerContent:
		return v.Direction
	case render.SpacerContent:
		return fmt.Sprintf("%.0fpx", v.Size)
	default:
		return ""
	}
}
