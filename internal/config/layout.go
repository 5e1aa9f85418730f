package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Layout resolves the on-disk structure under one agent's base path.
type Layout struct {
	Base string
}

func (l Layout) NaginiPath() string      { return filepath.Join(l.Base, "nagini") }
func (l Layout) ConfigPath() string      { return filepath.Join(l.Base, "config") }
func (l Layout) AppConfigPath() string   { return filepath.Join(l.Base, "config", "application") }
func (l Layout) ApplicationPath() string { return filepath.Join(l.Base, "application") }
func (l Layout) LockPath() string        { return filepath.Join(l.NaginiPath(), "nagini-server.lock") }

// NodePath is base/node_<id>.
func (l Layout) NodePath(id int) string {
	return filepath.Join(l.Base, "node_"+strconv.Itoa(id))
}

func (l Layout) NodeConfigPath(id int) string {
	return filepath.Join(l.NodePath(id), "config")
}

// NodeLogPath is the live application log of a node.
func (l Layout) NodeLogPath(id int) string {
	return filepath.Join(l.NodePath(id), "application.log")
}

// Expand substitutes '$' with the base path and '#' with the node path.
// A negative id leaves '#' untouched.
func (l Layout) Expand(s string, nodeID int) string {
	s = strings.ReplaceAll(s, "$", l.Base)
	if nodeID >= 0 {
		s = strings.ReplaceAll(s, "#", l.NodePath(nodeID))
	}
	return s
}

// ServerLayout returns the agent layout.
func (c *Config) ServerLayout() Layout {
	return Layout{Base: c.Server.BasePath}
}

// ExpandHome replaces a leading '~' with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
