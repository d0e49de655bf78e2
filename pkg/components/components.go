// Package components ships the built-in component kinds. Each kind is a
// resolve.KindResolver; hosts register additional kinds alongside these.
package components

import "github.com/go-loom/loom/pkg/resolve"

// Built-in kind tags.
const (
	KindContainer = "container"
	KindSection   = "section"
	KindText      = "text"
	KindButton    = "button"
	KindImage     = "image"
	KindToggle    = "toggle"
	KindInput     = "input"
	KindSpacer    = "spacer"
)

// RegisterBuiltins installs every built-in kind into r.
func RegisterBuiltins(r *resolve.Registry) {
	r.Register(KindContainer, Container{})
	r.Register(KindSection, Section{})
	r.Register(KindText, Text{})
	r.Register(KindButton, Button{})
	r.Register(KindImage, Image{})
	r.Register(KindToggle, Toggle{})
	r.Register(KindInput, Input{})
	r.Register(KindSpacer, Spacer{})
}
