package resolve

import (
	"strings"

	"github.com/go-loom/loom/pkg/document"
	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/render"
)

// MergeStyles resolves every inheritance chain in the style table. A style
// names at most one parent; merging is field-wise with child fields winning.
// A cycle is rejected with a structural error naming the cycle, never an
// infinite loop.
func MergeStyles(styles map[string]document.Style) (map[string]render.Style, error) {
	merged := make(map[string]render.Style, len(styles))
	for id := range styles {
		if _, done := merged[id]; done {
			continue
		}
		if _, err := mergeChain(id, styles, merged, nil); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

func mergeChain(id string, styles map[string]document.Style, merged map[string]render.Style, chain []string) (render.Style, error) {
	if style, done := merged[id]; done {
		return style, nil
	}
	for _, seen := range chain {
		if seen == id {
			return nil, &errors.StructuralError{
				Op:   "resolve.MergeStyles",
				Kind: errors.KindStyleCycle,
				Ref:  strings.Join(append(chain, id), " -> "),
			}
		}
	}

	style, ok := styles[id]
	if !ok {
		return nil, &errors.StructuralError{
			Op:   "resolve.MergeStyles",
			Kind: errors.KindDanglingReference,
			Ref:  id,
		}
	}

	result := render.Style{}
	if style.Inherits != "" {
		parent, err := mergeChain(style.Inherits, styles, merged, append(chain, id))
		if err != nil {
			return nil, err
		}
		result = result.Merge(parent)
	}
	result = result.Merge(render.Style(style.Props))

	merged[id] = result
	return result, nil
}
