package expr

import (
	"testing"

	"github.com/go-loom/loom/pkg/state"
)

// mapReader backs the evaluator with a fixed state tree.
type mapReader struct {
	store *state.Store
}

func newMapReader(seed map[string]state.Value) mapReader {
	s := state.New()
	for path, v := range seed {
		s.Seed(path, v)
	}
	return mapReader{store: s}
}

func (r mapReader) Lookup(path string) (state.Value, bool) {
	return r.store.Get(path)
}

func TestEvaluate_Arithmetic(t *testing.T) {
	reader := newMapReader(map[string]state.Value{
		"a": state.Int(7),
		"b": state.Int(2),
		"f": state.Float(0.5),
	})
	ev := New()

	cases := []struct {
		src  string
		want state.Value
	}{
		{"1 + 2 * 3", state.Int(7)},
		{"(1 + 2) * 3", state.Int(9)},
		{"a / b", state.Int(3)},
		{"a % b", state.Int(1)},
		{"-a % b", state.Int(-1)},
		{"a + f", state.Float(7.5)},
		{"a / 2.0", state.Float(3.5)},
		{"7.5 % 2", state.Float(1.5)},
		{"-f", state.Float(-0.5)},
		{"'n=' + a", state.String("n=7")},
	}
	for _, tc := range cases {
		got, err := ev.Evaluate(tc.src, reader)
		if err != nil {
			t.Errorf("Evaluate(%q): %v", tc.src, err)
			continue
		}
		if !got.Equal(tc.want) || got.Kind() != tc.want.Kind() {
			t.Errorf("Evaluate(%q) = %v %s, want %v %s", tc.src, got.Kind(), got.Text(), tc.want.Kind(), tc.want.Text())
		}
	}
}

func TestEvaluate_TernaryAndLogic(t *testing.T) {
	reader := newMapReader(map[string]state.Value{
		"n":     state.Int(3),
		"empty": state.String(""),
		"tags":  state.ListOf(state.String("a")),
	})
	ev := New()

	cases := []struct {
		src  string
		want state.Value
	}{
		{"n > 2 ? 'big' : 'small'", state.String("big")},
		{"empty ? 'yes' : 'no'", state.String("no")},
		{"tags ? 'yes' : 'no'", state.String("yes")},
		{"n == 3 && !empty", state.Bool(true)},
		{"empty || n >= 3", state.Bool(true)},
		{"missing ? 'yes' : 'no'", state.String("no")},
		{"n != 3 ? 1 : n > 2 ? 2 : 3", state.Int(2)},
	}
	for _, tc := range cases {
		got, err := ev.Evaluate(tc.src, reader)
		if err != nil {
			t.Errorf("Evaluate(%q): %v", tc.src, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("Evaluate(%q) = %s, want %s", tc.src, got.Text(), tc.want.Text())
		}
	}
}

func TestEvaluate_PathsAndIndexing(t *testing.T) {
	reader := newMapReader(map[string]state.Value{
		"user":  state.MapOf(map[string]state.Value{"name": state.String("ada")}),
		"items": state.ListOf(state.String("x"), state.String("y"), state.String("z")),
		"i":     state.Int(1),
	})
	ev := New()

	cases := []struct {
		src  string
		want state.Value
	}{
		{"user.name", state.String("ada")},
		{"items[2]", state.String("z")},
		{"items[i]", state.String("y")},
		{"items[i + 1]", state.String("z")},
		{"items.count", state.Int(3)},
		{"items.first", state.String("x")},
		{"items.last", state.String("z")},
		{"user['name']", state.String("ada")},
		{"missing.path", state.Null()},
	}
	for _, tc := range cases {
		got, err := ev.Evaluate(tc.src, reader)
		if err != nil {
			t.Errorf("Evaluate(%q): %v", tc.src, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("Evaluate(%q) = %s, want %s", tc.src, got.Text(), tc.want.Text())
		}
	}
}

func TestEvaluate_CountPrefersRealField(t *testing.T) {
	reader := newMapReader(map[string]state.Value{
		"stats": state.MapOf(map[string]state.Value{"count": state.Int(42)}),
	})
	got, err := New().Evaluate("stats.count", reader)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !got.Equal(state.Int(42)) {
		t.Errorf("stats.count = %s, want the real field 42, not the list property", got.Text())
	}
}

func TestEvaluate_Failures(t *testing.T) {
	reader := newMapReader(map[string]state.Value{
		"s": state.String("hi"),
		"n": state.Int(1),
	})
	ev := New()

	for _, src := range []string{
		"1 +",
		"(1 + 2",
		"'open",
		"1 / 0",
		"n % 0",
		"s * 2",
		"s < n",
		"-s",
		"@bad",
	} {
		if _, err := ev.Evaluate(src, reader); err == nil {
			t.Errorf("Evaluate(%q) succeeded, want error", src)
		}
	}
}

func TestInterpolate_Totality(t *testing.T) {
	reader := newMapReader(map[string]state.Value{
		"a":     state.Int(2),
		"b":     state.Int(3),
		"items": state.ListOf(state.String("x"), state.String("y")),
		"name":  state.String("ada"),
	})

	ev := New()
	cases := []struct {
		template string
		want     string
	}{
		{"${a+b}", "5"},
		{"${items[1]}", "y"},
		{"hello ${name}!", "hello ada!"},
		{"${a} of ${b}", "2 of 3"},
		{"${missing}", ""},
		{"${1 +}", ""},
		{"${'}' + name}", "}ada"},
		{"no spans", "no spans"},
		{"${unterminated", ""},
	}
	for _, tc := range cases {
		if got := ev.Interpolate(tc.template, reader); got != tc.want {
			t.Errorf("Interpolate(%q) = %q, want %q", tc.template, got, tc.want)
		}
	}
}

func TestInterpolate_CustomPlaceholder(t *testing.T) {
	reader := newMapReader(nil)
	ev := New(WithPlaceholder("–"))

	if got := ev.Interpolate("v=${missing}", reader); got != "v=–" {
		t.Errorf("Interpolate = %q, want %q", got, "v=–")
	}
	if got := ev.Interpolate("v=${1/0}", reader); got != "v=–" {
		t.Errorf("Interpolate = %q, want %q", got, "v=–")
	}
}
