package config

import (
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"testing"
)

func TestParseHostList(t *testing.T) {
	m, err := ParseHostList(strings.NewReader(`
# fleet
alpha, 1, 2
beta,3
gamma
`))
	if err != nil {
		t.Fatalf("ParseHostList: %v", err)
	}

	if got := m.Hosts(); strings.Join(got, ",") != "alpha,beta,gamma" {
		t.Fatalf("Hosts = %v", got)
	}
	if got := m.Nodes("alpha"); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("Nodes(alpha) = %v", got)
	}
	if got := m.Nodes("gamma"); len(got) != 0 {
		t.Fatalf("Nodes(gamma) = %v", got)
	}
	if h, ok := m.Host(3); !ok || h != "beta" {
		t.Fatalf("Host(3) = %q, %v", h, ok)
	}
	if _, ok := m.Host(9); ok {
		t.Fatal("Host(9) should be unknown")
	}
	if got := m.AllNodes(); len(got) != 3 || got[2] != 3 {
		t.Fatalf("AllNodes = %v", got)
	}
}

func TestParseHostListErrors(t *testing.T) {
	tests := map[string]string{
		"duplicate node": "alpha, 1\nbeta, 1\n",
		"duplicate host": "alpha, 1\nalpha, 2\n",
		"bad id":         "alpha, one\n",
		"negative id":    "alpha, -4\n",
		"empty host":     " , 1\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseHostList(strings.NewReader(input))
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

// Every node in the reverse map must appear in its owner's list.
func TestHostListMappingsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		var b strings.Builder
		next := 0
		for h := 0; h < 1+rng.Intn(6); h++ {
			b.WriteString("host" + strconv.Itoa(h))
			for n := 0; n < rng.Intn(5); n++ {
				b.WriteString(", " + strconv.Itoa(next))
				next++
			}
			b.WriteString("\n")
		}

		m, err := ParseHostList(strings.NewReader(b.String()))
		if err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		for _, id := range m.AllNodes() {
			host, ok := m.Host(id)
			if !ok {
				t.Fatalf("round %d: node %d has no host", round, id)
			}
			found := false
			for _, n := range m.Nodes(host) {
				if n == id {
					found = true
				}
			}
			if !found {
				t.Fatalf("round %d: node %d missing from %s", round, id, host)
			}
		}
	}
}
