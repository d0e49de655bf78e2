package state

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStore_GetAbsentIsNotAnError(t *testing.T) {
	s := New()
	v, ok := s.Get("missing.path")
	if ok || !v.IsNull() {
		t.Errorf("Get(missing.path) = %v, %v, want null, false", v, ok)
	}
}

func TestStore_SetDirtiesStrictAncestors(t *testing.T) {
	s := New()
	s.Set("user.address.city", String("lisbon"))

	for _, path := range []string{"user.address.city", "user.address", "user"} {
		if !s.IsDirty(path) {
			t.Errorf("IsDirty(%q) = false immediately after write", path)
		}
	}
	if s.IsDirty("users") {
		t.Error("IsDirty(users) = true; prefix matching must respect segment boundaries")
	}

	got := s.ConsumeDirty()
	want := []string{"user", "user.address", "user.address.city"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ConsumeDirty() mismatch (-want +got):\n%s", diff)
	}
	if again := s.ConsumeDirty(); again != nil {
		t.Errorf("second ConsumeDirty() = %v, want nil", again)
	}
}

func TestStore_BracketPathsDirtyListAncestors(t *testing.T) {
	s := New()
	s.Seed("items", ListOf(String("a"), String("b")))
	s.Set("items[1]", String("c"))

	if !s.IsDirty("items") {
		t.Error("IsDirty(items) = false after items[1] write")
	}
	got, _ := s.Get("items[1]")
	if got.Text() != "c" {
		t.Errorf("items[1] = %q, want c", got.Text())
	}
}

func TestStore_IsDirtyDescendantMatch(t *testing.T) {
	s := New()
	s.Set("user.name", String("ada"))
	// The exact path "user" is dirtied by the ancestor rule; a reader of the
	// never-written "user.name.x" parent chain must also see descendant dirt.
	if !s.IsDirty("user") {
		t.Error("IsDirty(user) = false")
	}
}

func TestStore_SetThroughNonContainer(t *testing.T) {
	s := New()
	s.Set("config", String("plain"))
	s.Set("config.debug", Bool(true))

	v, ok := s.Get("config.debug")
	if !ok {
		t.Fatal("Get(config.debug) absent after write through non-container")
	}
	if b, _ := v.AsBool(); !b {
		t.Errorf("config.debug = %v, want true", v)
	}
	if cfg, _ := s.Get("config"); cfg.Kind() != KindMap {
		t.Errorf("config kind = %v, want map", cfg.Kind())
	}
}

func TestStore_SetMaterializesIntermediates(t *testing.T) {
	s := New()
	s.Set("a.b.c", Int(1))
	if v, ok := s.Get("a.b.c"); !ok || !v.Equal(Int(1)) {
		t.Errorf("a.b.c = %v, %v", v, ok)
	}
}

func TestStore_ArraySugar(t *testing.T) {
	s := New()
	s.Append("tags", String("red"))
	s.Append("tags", String("blue"))
	s.Append("tags", String("red"))

	s.RemoveValue("tags", String("red"))
	tags, _ := s.Get("tags")
	if diff := cmp.Diff([]string{"blue", "red"}, textsOf(tags)); diff != "" {
		t.Errorf("after RemoveValue (-want +got):\n%s", diff)
	}

	s.RemoveAt("tags", 1)
	tags, _ = s.Get("tags")
	if diff := cmp.Diff([]string{"blue"}, textsOf(tags)); diff != "" {
		t.Errorf("after RemoveAt (-want +got):\n%s", diff)
	}
	s.RemoveAt("tags", 5) // out of range: no-op
	if tags, _ = s.Get("tags"); tags.Len() != 1 {
		t.Errorf("out-of-range RemoveAt changed the list: %v", tags.Text())
	}

	s.Toggle("tags", String("blue"))
	if tags, _ = s.Get("tags"); tags.Len() != 0 {
		t.Errorf("Toggle did not remove member: %v", tags.Text())
	}
	s.Toggle("tags", String("green"))
	tags, _ = s.Get("tags")
	if diff := cmp.Diff([]string{"green"}, textsOf(tags)); diff != "" {
		t.Errorf("after Toggle add (-want +got):\n%s", diff)
	}
}

func textsOf(list Value) []string {
	out := make([]string, 0, list.Len())
	for _, item := range list.Items() {
		out = append(out, item.Text())
	}
	return out
}

func TestStore_CallbacksRunInRegistrationOrder(t *testing.T) {
	s := New()
	var order []string
	s.OnChange(func(path string, old, new Value) {
		order = append(order, "first:"+path)
	})
	remove := s.OnChange(func(path string, old, new Value) {
		order = append(order, "second:"+path)
	})

	s.Set("count", Int(1))
	want := []string{"first:count", "second:count"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("callback order (-want +got):\n%s", diff)
	}

	remove()
	order = nil
	s.Set("count", Int(2))
	if diff := cmp.Diff([]string{"first:count"}, order); diff != "" {
		t.Errorf("after removal (-want +got):\n%s", diff)
	}
}

func TestStore_CallbackSeesOldAndNew(t *testing.T) {
	s := New()
	s.Set("count", Int(1))
	var gotOld, gotNew Value
	s.OnChange(func(path string, old, new Value) {
		gotOld, gotNew = old, new
	})
	s.Set("count", Int(2))
	if !gotOld.Equal(Int(1)) || !gotNew.Equal(Int(2)) {
		t.Errorf("callback saw (%v, %v), want (1, 2)", gotOld, gotNew)
	}
}

func TestStore_WatchPatterns(t *testing.T) {
	s := New()
	var hits []string
	remove := s.Watch("user.*", func(path string, old, new Value) {
		hits = append(hits, path)
	})
	s.Watch("items.**", func(path string, old, new Value) {
		hits = append(hits, "deep:"+path)
	})

	s.Set("user.name", String("ada"))
	s.Set("user.address.city", String("lisbon")) // two segments below user: no *
	s.Set("other", Int(1))
	s.Set("items[0].id", Int(7))

	want := []string{"user.name", "deep:items[0].id"}
	if diff := cmp.Diff(want, hits); diff != "" {
		t.Errorf("watch hits (-want +got):\n%s", diff)
	}

	remove()
	hits = nil
	s.Set("user.name", String("grace"))
	if len(hits) != 0 {
		t.Errorf("removed watcher still fired: %v", hits)
	}
}

func TestStore_SeedDoesNotDirtyOrNotify(t *testing.T) {
	s := New()
	fired := false
	s.OnChange(func(string, Value, Value) { fired = true })
	s.Seed("count", Int(0))

	if fired {
		t.Error("Seed invoked change callbacks")
	}
	if dirty := s.ConsumeDirty(); dirty != nil {
		t.Errorf("Seed dirtied paths: %v", dirty)
	}
	if v, ok := s.Get("count"); !ok || !v.Equal(Int(0)) {
		t.Errorf("Get(count) = %v, %v after Seed", v, ok)
	}
}

func TestStore_SnapshotRestore(t *testing.T) {
	s := New()
	s.Set("user.name", String("ada"))
	s.Set("count", Int(3))
	s.ConsumeDirty()

	snap := s.Snapshot()

	s.Set("count", Int(99))
	s.Set("extra", Bool(true))
	s.ConsumeDirty()

	s.Restore(snap)
	if v, _ := s.Get("count"); !v.Equal(Int(3)) {
		t.Errorf("count after restore = %v, want 3", v)
	}
	if _, ok := s.Get("extra"); ok {
		t.Error("extra survived restore")
	}

	// Every top-level key of old and new states is dirtied so dependents of
	// dropped keys refresh too.
	if !s.IsDirty("count") || !s.IsDirty("user") || !s.IsDirty("extra") {
		t.Errorf("restore dirty set incomplete: %v", s.Dirty())
	}
}

func TestStore_SnapshotDetached(t *testing.T) {
	s := New()
	s.Set("n", Int(1))
	snap := s.Snapshot()
	s.Set("n", Int(2))
	if v, _ := snap.Field("n"); !v.Equal(Int(1)) {
		t.Errorf("snapshot mutated by later write: n = %v", v)
	}
}
