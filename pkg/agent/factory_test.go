package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
)

func TestNames(t *testing.T) {
	want := map[string]bool{
		"random": true, "heuristic": true, "pubeval": true, "gnubg": true,
		"pubevalex": true, "gnubgex": true,
		"raw-sutton": true, "raw-tesauro89": true, "raw-tesauro92": true, "raw-gnu": true,
	}
	names := Names()
	if len(names) != len(want) {
		t.Errorf("Names() = %v", names)
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected agent name %s", n)
		}
	}
}

func TestNewFixedAgents(t *testing.T) {
	opts := Options{Engine: newTestEngine(t), BasePath: t.TempDir()}

	for _, name := range []string{"random", "Heuristic", "RANDOM"} {
		a, err := New(name, opts)
		if err != nil {
			t.Fatalf("New(%s): %v", name, err)
		}
		if !a.IsFixed() || a.IsCloneable() {
			t.Errorf("%s: fixed %v, cloneable %v", name, a.IsFixed(), a.IsCloneable())
		}
		if _, err := a.Clone(); err == nil {
			t.Errorf("%s: Clone succeeded", name)
		}
	}

	if _, err := New("fann", opts); errors.Cause(err) != ErrUnknownAgent {
		t.Errorf("unknown agent: err = %v", err)
	}
	if _, err := New("pubeval", opts); err == nil {
		t.Error("pubeval without weight files succeeded")
	}
	if _, err := New("gnubg", opts); err == nil {
		t.Error("gnubg without weight files succeeded")
	}
	if _, err := New("random", Options{}); err == nil {
		t.Error("New without engine succeeded")
	}
}

func TestNewLearners(t *testing.T) {
	tests := []struct {
		name   string
		inputs int
	}{
		{"raw-tesauro92", RawInputs},
		{"pubevalex", PubevalInputs},
		{"Raw-Gnu", RawInputs},
	}
	for _, tt := range tests {
		base := t.TempDir()
		a, err := New(tt.name, Options{Engine: newTestEngine(t), BasePath: base, Stream: 1})
		if err != nil {
			t.Fatalf("New(%s): %v", tt.name, err)
		}
		f, ok := a.(*Flex)
		if !ok {
			t.Fatalf("%s is a %T", tt.name, a)
		}
		if f.IsFixed() || !f.IsCloneable() || f.SupportsSanityCheck() {
			t.Errorf("%s: fixed %v, cloneable %v, sanity %v", tt.name, f.IsFixed(), f.IsCloneable(), f.SupportsSanityCheck())
		}
		if p := f.Params(); p.Lambda != 0.7 || p.Alpha != 0.2 || p.Gamma != 1 {
			t.Errorf("%s: params %+v", tt.name, p)
		}
		if n := f.contact.Inputs(); n != tt.inputs {
			t.Errorf("%s: %d contact inputs, want %d", tt.name, n, tt.inputs)
		}
		if _, err := os.Stat(filepath.Join(a.Path(), contactFile)); err != nil {
			t.Errorf("%s: networks not saved: %v", tt.name, err)
		}
	}
}

func TestNewLearnerRestoresParams(t *testing.T) {
	base := t.TempDir()
	opts := Options{Engine: newTestEngine(t), BasePath: base}

	a, err := New("raw-sutton", opts)
	if err != nil {
		t.Fatal(err)
	}
	f := a.(*Flex)
	f.SetLearnMode(true)
	playTrace(t, f, 3)
	playTrace(t, f, 3)
	if err := f.Save(); err != nil {
		t.Fatal(err)
	}

	b, err := New("raw-sutton", opts)
	if err != nil {
		t.Fatal(err)
	}
	if b.PlayedGames() != 2 || !b.IsLearnMode() {
		t.Errorf("restored agent played %d games, learn mode %v", b.PlayedGames(), b.IsLearnMode())
	}
}
