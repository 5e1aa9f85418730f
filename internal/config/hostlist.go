package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// HostMap holds the two inverse host/node mappings built from host.list.
type HostMap struct {
	hosts []string
	nodes map[string][]int
	owner map[int]string
}

// ParseHostList reads lines of the form `host, id, id, ...`. Blank lines and
// lines starting with '#' are skipped.
func ParseHostList(r io.Reader) (*HostMap, error) {
	m := &HostMap{
		nodes: make(map[string][]int),
		owner: make(map[int]string),
	}

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ",")
		host := strings.TrimSpace(fields[0])
		if host == "" {
			return nil, fmt.Errorf("%w: host.list line %d: empty host name", ErrInvalid, lineNo)
		}
		if _, dup := m.nodes[host]; dup {
			return nil, fmt.Errorf("%w: host.list line %d: host %q listed twice", ErrInvalid, lineNo, host)
		}

		ids := make([]int, 0, len(fields)-1)
		for _, f := range fields[1:] {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			id, err := strconv.Atoi(f)
			if err != nil || id < 0 {
				return nil, fmt.Errorf("%w: host.list line %d: invalid node id %q", ErrInvalid, lineNo, f)
			}
			if prev, taken := m.owner[id]; taken {
				return nil, fmt.Errorf("%w: host.list line %d: node %d already assigned to %s", ErrInvalid, lineNo, id, prev)
			}
			m.owner[id] = host
			ids = append(ids, id)
		}
		m.hosts = append(m.hosts, host)
		m.nodes[host] = ids
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read host.list: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadHostList parses the host list file at path.
func LoadHostList(path string) (*HostMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open host list: %v", ErrInvalid, err)
	}
	defer f.Close()
	return ParseHostList(f)
}

// Validate checks that both mappings agree.
func (m *HostMap) Validate() error {
	for id, host := range m.owner {
		found := false
		for _, n := range m.nodes[host] {
			if n == id {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: node %d maps to %s but is missing from its node list", ErrInvalid, id, host)
		}
	}
	for host, ids := range m.nodes {
		for _, id := range ids {
			if m.owner[id] != host {
				return fmt.Errorf("%w: host %s lists node %d owned by %q", ErrInvalid, host, id, m.owner[id])
			}
		}
	}
	return nil
}

// Hosts returns host names in file order.
func (m *HostMap) Hosts() []string {
	return append([]string(nil), m.hosts...)
}

// Nodes returns the node ids assigned to host.
func (m *HostMap) Nodes(host string) []int {
	return append([]int(nil), m.nodes[host]...)
}

// Host returns the host owning node id.
func (m *HostMap) Host(id int) (string, bool) {
	h, ok := m.owner[id]
	return h, ok
}

// AllNodes returns every node id in ascending order.
func (m *HostMap) AllNodes() []int {
	ids := make([]int, 0, len(m.owner))
	for id := range m.owner {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
