package engine_test

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/go-loom/loom/pkg/components"
	"github.com/go-loom/loom/pkg/document"
	"github.com/go-loom/loom/pkg/engine"
	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/render"
	"github.com/go-loom/loom/pkg/snapshot"
	"github.com/go-loom/loom/pkg/state"
)

// recordingAdapter captures mounts and patch batches.
type recordingAdapter struct {
	mu      sync.Mutex
	root    *render.Node
	mounts  int
	batches [][]engine.Patch
}

func (a *recordingAdapter) Mount(root *render.Node) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.root = root
	a.mounts++
}

func (a *recordingAdapter) Apply(patches []engine.Patch) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.batches = append(a.batches, patches)
}

func (a *recordingAdapter) lastBatch(t *testing.T) []engine.Patch {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.batches) == 0 {
		t.Fatal("no batch delivered")
	}
	return a.batches[len(a.batches)-1]
}

func (a *recordingAdapter) batchCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.batches)
}

func counterDoc() *document.Document {
	return &document.Document{
		Version: "1.0.0",
		State: map[string]state.Value{
			"count": state.Int(0),
		},
		Actions: map[string]document.Action{
			"increment": {Kind: document.ActionSet, Path: "count", Value: document.Expr("count + 1")},
			"reset":     {Kind: document.ActionSet, Path: "count", Value: document.Literal(state.Int(0))},
		},
		Root: &document.Node{
			ID:   "root",
			Kind: components.KindContainer,
			Children: []*document.Node{
				{
					ID:   "label",
					Kind: components.KindText,
					Props: map[string]document.PropValue{
						"text": document.Template("Count: ${count}"),
					},
				},
				{
					ID:   "inc",
					Kind: components.KindButton,
					Props: map[string]document.PropValue{
						"label": document.Literal(state.String("+1")),
						"onTap": document.Literal(state.String("increment")),
					},
				},
				{
					ID:   "dark",
					Kind: components.KindToggle,
					Props: map[string]document.PropValue{
						"value": document.Bind("settings.dark"),
					},
				},
			},
		},
	}
}

// ackBatch acknowledges every patch of a delivered batch, the way a host
// does after applying it.
func ackBatch(e *engine.Engine, batch []engine.Patch) {
	for _, p := range batch {
		e.Ack(p.Handle)
	}
}

func findPatch(t *testing.T, batch []engine.Patch, id string) engine.Patch {
	t.Helper()
	for _, p := range batch {
		if p.NodeID == id {
			return p
		}
	}
	t.Fatalf("no patch for %q in batch %+v", id, batch)
	return engine.Patch{}
}

func textOf(t *testing.T, root *render.Node, id string) string {
	t.Helper()
	var text string
	render.Walk(root, func(n *render.Node) bool {
		if n.ID == id {
			text = n.Content.(render.TextContent).Text
		}
		return true
	})
	return text
}

func TestEngineCounterFlow(t *testing.T) {
	adapter := &recordingAdapter{}
	e := engine.New(engine.WithAdapter(adapter))
	if err := e.LoadDocument(counterDoc()); err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if adapter.mounts != 1 {
		t.Fatalf("mounts = %d", adapter.mounts)
	}
	if got := textOf(t, adapter.root, "label"); got != "Count: 0" {
		t.Fatalf("initial label = %q", got)
	}

	ctx := context.Background()
	if err := e.Dispatch(ctx, document.ActionRef{ID: "increment"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	batch := adapter.lastBatch(t)
	if len(batch) != 1 {
		t.Fatalf("batch = %+v, want only the label", batch)
	}
	patch := findPatch(t, batch, "label")
	if got := patch.Content.(render.TextContent).Text; got != "Count: 1" {
		t.Errorf("patched label = %q", got)
	}

	ackBatch(e, batch)
	if err := e.Dispatch(ctx, document.ActionRef{ID: "increment"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	patch = findPatch(t, adapter.lastBatch(t), "label")
	if got := patch.Content.(render.TextContent).Text; got != "Count: 2" {
		t.Errorf("patched label = %q", got)
	}
}

func TestEngineUpdateBatchesOnce(t *testing.T) {
	adapter := &recordingAdapter{}
	e := engine.New(engine.WithAdapter(adapter))
	if err := e.LoadDocument(counterDoc()); err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}

	err := e.Update(func(s *state.Store) {
		s.Set("count", state.Int(10))
		s.Set("count", state.Int(11))
		s.Set("settings.dark", state.Bool(true))
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if adapter.batchCount() != 1 {
		t.Fatalf("batches = %d, want one per Update", adapter.batchCount())
	}
	batch := adapter.lastBatch(t)
	if len(batch) != 2 {
		t.Fatalf("batch = %+v, want label and toggle exactly once", batch)
	}
	if got := findPatch(t, batch, "label").Content.(render.TextContent).Text; got != "Count: 11" {
		t.Errorf("label = %q, want last write", got)
	}
	if got := findPatch(t, batch, "dark").Content.(render.ToggleContent); !got.Value {
		t.Errorf("toggle = %+v", got)
	}
}

func TestEngineWriteBack(t *testing.T) {
	adapter := &recordingAdapter{}
	e := engine.New(engine.WithAdapter(adapter))
	if err := e.LoadDocument(counterDoc()); err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}

	var bindPath string
	render.Walk(adapter.root, func(n *render.Node) bool {
		if n.ID == "dark" {
			bindPath = n.Content.(render.ToggleContent).BindPath
		}
		return true
	})
	if bindPath != "settings.dark" {
		t.Fatalf("bind path = %q", bindPath)
	}

	if err := e.WriteBack(bindPath, state.Bool(true)); err != nil {
		t.Fatalf("WriteBack: %v", err)
	}
	// The writer refreshes too: its patch reflects the written value.
	got := findPatch(t, adapter.lastBatch(t), "dark").Content.(render.ToggleContent)
	if !got.Value {
		t.Errorf("toggle after write-back = %+v", got)
	}
	if v, _ := e.Store().Get("settings.dark"); !v.Equal(state.Bool(true)) {
		t.Errorf("state = %s", v.Text())
	}
}

func TestEngineAck(t *testing.T) {
	adapter := &recordingAdapter{}
	e := engine.New(engine.WithAdapter(adapter))
	if err := e.LoadDocument(counterDoc()); err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if err := e.SetState("count", state.Int(3)); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	if got := e.PendingUpdates(); got != 1 {
		t.Fatalf("pending = %d", got)
	}
	e.Ack(adapter.lastBatch(t)[0].Handle)
	if got := e.PendingUpdates(); got != 0 {
		t.Errorf("pending after ack = %d", got)
	}
}

func TestEngineSkipsPendingNodes(t *testing.T) {
	adapter := &recordingAdapter{}
	e := engine.New(engine.WithAdapter(adapter))
	if err := e.LoadDocument(counterDoc()); err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}

	if err := e.SetState("count", state.Int(1)); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	first := adapter.lastBatch(t)
	if got := findPatch(t, first, "label").Content.(render.TextContent).Text; got != "Count: 1" {
		t.Fatalf("first batch label = %q", got)
	}

	// Without an acknowledgement the label's patch is still in flight; the
	// next batch must not redeliver it.
	if err := e.SetState("count", state.Int(2)); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if got := adapter.batchCount(); got != 1 {
		t.Fatalf("batches = %d, still-pending node redelivered", got)
	}
	if got := e.PendingUpdates(); got != 1 {
		t.Fatalf("pending = %d", got)
	}

	// Acknowledged nodes re-enter the cycle.
	ackBatch(e, first)
	if err := e.SetState("count", state.Int(3)); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	got := findPatch(t, adapter.lastBatch(t), "label").Content.(render.TextContent).Text
	if got != "Count: 3" {
		t.Errorf("label after ack = %q", got)
	}
}

func TestEnginePlaceholderOptionOrder(t *testing.T) {
	var logged bytes.Buffer
	logger := zerolog.New(&logged)

	doc := counterDoc()
	doc.Root.Children[0].Props["text"] = document.Template("v=${1 / 0}")

	// The placeholder option precedes the logger option; both must stick.
	adapter := &recordingAdapter{}
	e := engine.New(
		engine.WithPlaceholder("?"),
		engine.WithLogger(logger),
		engine.WithAdapter(adapter),
	)
	if err := e.LoadDocument(doc); err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}

	if got := textOf(t, adapter.root, "label"); got != "v=?" {
		t.Errorf("degraded label = %q", got)
	}
	if !strings.Contains(logged.String(), "expression degraded to placeholder") {
		t.Errorf("degraded span not logged through the configured logger: %s", logged.String())
	}
}

func TestEngineHostAction(t *testing.T) {
	var gotParams map[string]state.Value
	e := engine.New(
		engine.WithActionHandler("navigate", func(_ context.Context, s *state.Store, _ *document.Action, params map[string]state.Value) error {
			gotParams = params
			s.Set("nav.current", params["to"])
			return nil
		}),
	)
	if err := e.LoadDocument(counterDoc()); err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}

	ref := document.ActionRef{Inline: &document.Action{
		Kind: "navigate",
		Params: map[string]document.PropValue{
			"to":    document.Literal(state.String("settings")),
			"count": document.Expr("count + 100"),
		},
	}}
	if err := e.Dispatch(context.Background(), ref); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if got, _ := gotParams["to"].AsString(); got != "settings" {
		t.Errorf("param to = %v", gotParams["to"])
	}
	if got, _ := gotParams["count"].AsInt(); got != 100 {
		t.Errorf("param count = %v", gotParams["count"])
	}
	if v, _ := e.Store().Get("nav.current"); !v.Equal(state.String("settings")) {
		t.Errorf("handler write = %s", v.Text())
	}
}

func TestEngineHostActionErrorPropagates(t *testing.T) {
	boom := fmt.Errorf("no such route")
	e := engine.New(
		engine.WithActionHandler("navigate", func(context.Context, *state.Store, *document.Action, map[string]state.Value) error {
			return boom
		}),
	)
	if err := e.LoadDocument(counterDoc()); err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}

	err := e.Dispatch(context.Background(), document.ActionRef{Inline: &document.Action{Kind: "navigate"}})
	aerr, ok := errors.AsAction(err)
	if !ok {
		t.Fatalf("err = %v, want ActionError", err)
	}
	if aerr.Err != boom {
		t.Errorf("handler error not wrapped: %v", err)
	}
}

func TestEngineUnknownActionKinds(t *testing.T) {
	e := engine.New()
	if err := e.LoadDocument(counterDoc()); err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}

	if err := e.Dispatch(context.Background(), document.ActionRef{ID: "missing"}); err == nil {
		t.Error("unknown action id dispatched without error")
	}
	if err := e.Dispatch(context.Background(), document.ActionRef{Inline: &document.Action{Kind: "teleport"}}); err == nil {
		t.Error("unhandled host kind dispatched without error")
	}
}

func TestEngineBatchAction(t *testing.T) {
	adapter := &recordingAdapter{}
	e := engine.New(engine.WithAdapter(adapter))
	if err := e.LoadDocument(counterDoc()); err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}

	ref := document.ActionRef{Inline: &document.Action{
		Kind: document.ActionBatch,
		Steps: []document.Action{
			{Kind: document.ActionSet, Path: "count", Value: document.Literal(state.Int(5))},
			{Kind: document.ActionSet, Path: "settings.dark", Value: document.Literal(state.Bool(true))},
		},
	}}
	if err := e.Dispatch(context.Background(), ref); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if adapter.batchCount() != 1 {
		t.Errorf("batches = %d, want batch steps flushed together", adapter.batchCount())
	}
	if len(adapter.lastBatch(t)) != 2 {
		t.Errorf("batch = %+v", adapter.lastBatch(t))
	}
}

func TestEngineReloadKeepsLiveState(t *testing.T) {
	adapter := &recordingAdapter{}
	e := engine.New(engine.WithAdapter(adapter))
	if err := e.LoadDocument(counterDoc()); err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if err := e.SetState("count", state.Int(9)); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	if err := e.LoadDocument(counterDoc()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if adapter.mounts != 2 {
		t.Errorf("mounts = %d", adapter.mounts)
	}
	if got := textOf(t, adapter.root, "label"); got != "Count: 9" {
		t.Errorf("label after reload = %q, initializer clobbered live state", got)
	}
}

func TestEngineLoadFailureKeepsOldTree(t *testing.T) {
	e := engine.New()
	if err := e.LoadDocument(counterDoc()); err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	before := e.Render()

	bad := counterDoc()
	bad.Root.Children[0].Kind = "chart"
	if err := e.LoadDocument(bad); err == nil {
		t.Fatal("bad document loaded without error")
	}
	if e.Render() != before {
		t.Error("failed load replaced the live tree")
	}
}

func TestEngineSnapshotRoundTrip(t *testing.T) {
	store, err := snapshot.OpenBolt(filepath.Join(t.TempDir(), "snap.db"))
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	defer store.Close()

	adapter := &recordingAdapter{}
	e := engine.New(engine.WithAdapter(adapter), engine.WithSnapshotStore(store))
	if err := e.LoadDocument(counterDoc()); err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if err := e.SetState("count", state.Int(42)); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	ackBatch(e, adapter.lastBatch(t))

	ctx := context.Background()
	if _, err := e.SaveSnapshot(ctx); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	if err := e.SetState("count", state.Int(0)); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	ackBatch(e, adapter.lastBatch(t))
	if err := e.RestoreSnapshot(ctx); err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}

	if v, _ := e.Store().Get("count"); !v.Equal(state.Int(42)) {
		t.Errorf("restored count = %s", v.Text())
	}
	got := findPatch(t, adapter.lastBatch(t), "label").Content.(render.TextContent)
	if got.Text != "Count: 42" {
		t.Errorf("label after restore = %q", got.Text)
	}
}

func TestEngineSnapshotExcludesLocalScopes(t *testing.T) {
	store, err := snapshot.OpenBolt(filepath.Join(t.TempDir(), "snap.db"))
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	defer store.Close()

	doc := counterDoc()
	doc.Root.Local = map[string]state.Value{"open": state.Bool(true)}

	e := engine.New(engine.WithSnapshotStore(store))
	if err := e.LoadDocument(doc); err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if _, err := e.SaveSnapshot(context.Background()); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	snap, found, err := store.Load(context.Background())
	if err != nil || !found {
		t.Fatalf("Load: found=%v err=%v", found, err)
	}
	for _, key := range snap.State.Keys() {
		if state.IsLocal(key) {
			t.Errorf("snapshot leaked local scope key %q", key)
		}
	}
	if _, ok := snap.State.Field("count"); !ok {
		t.Error("snapshot missing global state")
	}
}

func TestEngineRestoreKeepsLocalScopes(t *testing.T) {
	store, err := snapshot.OpenBolt(filepath.Join(t.TempDir(), "snap.db"))
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	defer store.Close()

	doc := counterDoc()
	doc.Root.Local = map[string]state.Value{"open": state.Bool(true)}
	doc.Root.Children = append(doc.Root.Children, &document.Node{
		ID:   "disclosure",
		Kind: components.KindToggle,
		Props: map[string]document.PropValue{
			"value": document.Bind("local.open"),
		},
	})

	adapter := &recordingAdapter{}
	e := engine.New(engine.WithAdapter(adapter), engine.WithSnapshotStore(store))
	if err := e.LoadDocument(doc); err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}

	var localPath string
	render.Walk(adapter.root, func(n *render.Node) bool {
		if n.ID == "disclosure" {
			localPath = n.Content.(render.ToggleContent).BindPath
		}
		return true
	})
	if !state.IsLocal(localPath) {
		t.Fatalf("bind path = %q, want namespaced local path", localPath)
	}

	// Flip the disclosure after mount, then snapshot and restore.
	if err := e.WriteBack(localPath, state.Bool(false)); err != nil {
		t.Fatalf("WriteBack: %v", err)
	}
	ctx := context.Background()
	if _, err := e.SaveSnapshot(ctx); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := e.RestoreSnapshot(ctx); err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}

	v, ok := e.Store().Get(localPath)
	if !ok {
		t.Fatal("mounted tree's local scope lost on restore")
	}
	if !v.Equal(state.Bool(false)) {
		t.Errorf("local value after restore = %s, want the live value", v.Text())
	}
	if got, _ := e.Store().Get("count"); !got.Equal(state.Int(0)) {
		t.Errorf("restored count = %s", got.Text())
	}
}
