package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattjoyce/nagini/internal/config"
	"github.com/mattjoyce/nagini/internal/transfer"
)

// GenerateNodeConfig rebuilds node_<id>/config from config/application. Among
// the copied top-level files, `name.<n>` becomes `name` when n is nodeID and is
// removed for any other integer n.
func GenerateNodeConfig(layout config.Layout, nodeID int) error {
	dst := layout.NodeConfigPath(nodeID)
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("clear %s: %w", dst, err)
	}
	if err := os.MkdirAll(layout.NodePath(nodeID), 0o755); err != nil {
		return fmt.Errorf("create node dir: %w", err)
	}

	src := layout.AppConfigPath()
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return os.MkdirAll(dst, 0o755)
		}
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if err := transfer.CopyTree(src, dst); err != nil {
		return err
	}

	entries, err := os.ReadDir(dst)
	if err != nil {
		return fmt.Errorf("read %s: %w", dst, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		base, id, ok := splitNodeSuffix(e.Name())
		if !ok {
			continue
		}
		path := filepath.Join(dst, e.Name())
		if id == nodeID {
			if err := os.Rename(path, filepath.Join(dst, base)); err != nil {
				return fmt.Errorf("apply override %s: %w", e.Name(), err)
			}
			continue
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove override %s: %w", e.Name(), err)
		}
	}
	return nil
}

// splitNodeSuffix splits "server.conf.3" into ("server.conf", 3).
func splitNodeSuffix(name string) (string, int, bool) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return "", 0, false
	}
	id, err := strconv.Atoi(name[i+1:])
	if err != nil || id < 0 {
		return "", 0, false
	}
	return name[:i], id, true
}
