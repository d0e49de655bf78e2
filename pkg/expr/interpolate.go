package expr

import (
	"strings"

	"github.com/go-loom/loom/pkg/state"
)

// Interpolate replaces every ${...} span in template with the stringified
// result of evaluating the span against r. It is total: malformed spans,
// evaluation failures and null results degrade to the configured
// placeholder, never an error or panic, because templates are
// content-authored input.
func (e *Evaluator) Interpolate(template string, r state.Reader) string {
	if !strings.Contains(template, "${") {
		return template
	}

	var sb strings.Builder
	rest := template
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			sb.WriteString(rest)
			return sb.String()
		}
		sb.WriteString(rest[:start])
		body, tail, ok := spanBody(rest[start+2:])
		if !ok {
			// Unterminated span: the remainder degrades as one failing span.
			e.logger.Debug().Str("template", template).Msg("unterminated interpolation span")
			sb.WriteString(e.placeholder)
			return sb.String()
		}
		sb.WriteString(e.evalSpan(body, r))
		rest = tail
	}
}

// spanBody returns the content of a ${...} span given the text after "${",
// honoring quotes so a '}' inside a string literal does not close the span.
func spanBody(rest string) (body, tail string, ok bool) {
	var quote byte
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '}':
			return rest[:i], rest[i+1:], true
		}
	}
	return "", "", false
}

func (e *Evaluator) evalSpan(src string, r state.Reader) string {
	v, err := e.Evaluate(src, r)
	if err != nil {
		e.logger.Debug().Str("expr", src).Err(err).Msg("expression degraded to placeholder")
		return e.placeholder
	}
	if v.IsNull() {
		return e.placeholder
	}
	return v.Text()
}
