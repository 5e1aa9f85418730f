package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// remoteFilesystems are mount types on which SQLite locking and flock are
// unreliable.
var remoteFilesystems = []string{"afpfs", "cifs", "nfs", "smb2", "smbfs", "webdav"}

// NetworkFSError reports a file the agent must keep on local disk that
// resolves to a network mount.
type NetworkFSError struct {
	Purpose string
	Path    string
	FSType  string
}

func (e *NetworkFSError) Error() string {
	return fmt.Sprintf("%s %q is on network filesystem %s; use local disk", e.Purpose, e.Path, e.FSType)
}

// RequireLocal fails with *NetworkFSError when path, or its closest existing
// ancestor, sits on a network mount. purpose names the file in the error.
func RequireLocal(path, purpose string) error {
	return requireLocal(path, purpose, detectFilesystemType)
}

func requireLocal(path, purpose string, detect func(string) (string, error)) error {
	if path == "" {
		return fmt.Errorf("%s path is empty", purpose)
	}
	probe, err := existingAncestor(path)
	if err != nil {
		return fmt.Errorf("resolve %s path: %w", purpose, err)
	}
	fsType, err := detect(probe)
	if err != nil {
		return fmt.Errorf("inspect filesystem of %s: %w", probe, err)
	}
	if remoteFilesystem(fsType) {
		return &NetworkFSError{Purpose: purpose, Path: path, FSType: fsType}
	}
	return nil
}

// existingAncestor walks up from path until it finds something that exists.
func existingAncestor(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(p)
		switch {
		case err == nil:
			return p, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing ancestor of %s", path)
		}
		p = parent
	}
}

func remoteFilesystem(fsType string) bool {
	return slices.Contains(remoteFilesystems, strings.ToLower(strings.TrimSpace(fsType)))
}
