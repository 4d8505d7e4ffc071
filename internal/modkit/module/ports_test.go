package module

import (
	"testing"

	phttp "github.com/oscar-project/ungoliant/internal/platform/net/http"
	"github.com/oscar-project/ungoliant/internal/platform/testkit"
)

type counter interface{ Count() int }

type fixed int

func (f fixed) Count() int { return int(f) }

type fakeModule struct{ ports any }

func (m fakeModule) Name() string             { return "fake" }
func (m fakeModule) Ports() PortSet           { return m.ports }
func (m fakeModule) MountRoutes(phttp.Router) {}

func TestPortsOf(t *testing.T) {
	t.Parallel()

	type bundle struct {
		Name    string
		Counter counter
		hidden  counter
	}

	tests := []struct {
		name  string
		ports any
		want  int
		ok    bool
	}{
		{"nil ports", nil, 0, false},
		{"direct", fixed(3), 3, true},
		{"struct field", bundle{Name: "x", Counter: fixed(7)}, 7, true},
		{"unexported field ignored", bundle{hidden: fixed(9)}, 0, false},
		{"no match", "plain", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PortsOf[counter](fakeModule{ports: tt.ports})
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got.Count() != tt.want {
				t.Fatalf("Count = %d, want %d", got.Count(), tt.want)
			}
		})
	}
}

func TestMustPortsOf(t *testing.T) {
	t.Parallel()

	if MustPortsOf[counter](fakeModule{ports: fixed(1)}).Count() != 1 {
		t.Fatal("MustPortsOf returned the wrong port")
	}
	testkit.MustPanic(t, func() { _ = MustPortsOf[counter](fakeModule{}) })
}
