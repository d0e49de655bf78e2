package errors

import (
	"fmt"
	"testing"
)

func TestStructuralError_Message(t *testing.T) {
	err := &StructuralError{
		Op:   "resolve.styleChain",
		Kind: KindStyleCycle,
		Path: "root.children[1]",
		Ref:  "card",
	}
	want := `resolve.styleChain [style cycle] at root.children[1] (ref "card")`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestStructural_Unwraps(t *testing.T) {
	inner := &StructuralError{Op: "resolve.node", Kind: KindUnregisteredComponent, Ref: "chart"}
	wrapped := fmt.Errorf("loading document: %w", inner)

	se, ok := Structural(wrapped)
	if !ok {
		t.Fatalf("Structural(%v) = _, false, want true", wrapped)
	}
	if se.Kind != KindUnregisteredComponent {
		t.Errorf("Kind = %v, want %v", se.Kind, KindUnregisteredComponent)
	}
	if _, ok := Structural(fmt.Errorf("plain")); ok {
		t.Error("Structural(plain error) = _, true, want false")
	}
}

func TestActionError_InlineID(t *testing.T) {
	err := &ActionError{Op: "engine.ExecuteAction", Kind: "navigate", Err: fmt.Errorf("no handler")}
	want := "engine.ExecuteAction action <inline> (kind navigate): no handler"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
