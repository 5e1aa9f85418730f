//go:build linux

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// statfs magic numbers of the network mounts in remoteFilesystems.
var networkMagic = map[int64]string{
	unix.NFS_SUPER_MAGIC: "nfs",
	unix.SMB_SUPER_MAGIC: "smbfs",
	0xFF534D42:           "cifs",
	0xFE534D42:           "smb2",
}

func detectFilesystemType(path string) (string, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return "", fmt.Errorf("statfs %s: %w", path, err)
	}
	if name, ok := networkMagic[int64(st.Type)]; ok {
		return name, nil
	}
	return fmt.Sprintf("0x%x", uint64(st.Type)), nil
}
