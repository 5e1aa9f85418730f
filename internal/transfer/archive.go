// Package transfer moves file trees between the client and agents: a tree is
// packed into one zstd-compressed tar stream before any network I/O, shipped as
// a length-prefixed body, and unpacked under the destination on the far side.
package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/moby/go-archive"
)

// ArchiveExt names temp archives on disk.
const ArchiveExt = ".tar.zst"

// PackOptions tunes Pack.
type PackOptions struct {
	// RootName replaces the base name of the packed path inside the archive.
	RootName string
	// Exclude holds path patterns, relative to the parent of the packed path, to leave out.
	Exclude []string
}

// Pack writes src (a file or a directory) to w as a compressed archive. Entries
// are relative to the parent of src, so the archive root is src's base name.
// Empty directories are kept.
func Pack(src string, w io.Writer, opts PackOptions) error {
	src = filepath.Clean(src)
	if _, err := os.Lstat(src); err != nil {
		return fmt.Errorf("pack %s: %w", src, err)
	}
	base := filepath.Base(src)

	tarOpts := &archive.TarOptions{
		IncludeFiles:    []string{base},
		ExcludePatterns: opts.Exclude,
	}
	if opts.RootName != "" && opts.RootName != base {
		tarOpts.RebaseNames = map[string]string{base: opts.RootName}
	}

	tarStream, err := archive.TarWithOptions(filepath.Dir(src), tarOpts)
	if err != nil {
		return fmt.Errorf("tar %s: %w", src, err)
	}
	defer tarStream.Close()

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	if _, err := io.Copy(enc, tarStream); err != nil {
		_ = enc.Close()
		return fmt.Errorf("compress %s: %w", src, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

// Unpack expands an archive produced by Pack under dest, creating dest if needed.
// Existing files with the same relative path are replaced.
func Unpack(r io.Reader, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()

	if err := archive.UntarUncompressed(dec, dest, &archive.TarOptions{NoLchown: true}); err != nil {
		return fmt.Errorf("expand into %s: %w", dest, err)
	}
	return nil
}

// PackFile packs src into a new temp archive under tempDir and returns its path
// and size. The caller removes the file.
func PackFile(src, tempDir string, opts PackOptions) (string, int64, error) {
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create temp dir: %w", err)
	}
	path := TempArchivePath(tempDir)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("create temp archive: %w", err)
	}

	packErr := Pack(src, f, opts)
	closeErr := f.Close()
	if err := errors.Join(packErr, closeErr); err != nil {
		_ = os.Remove(path)
		return "", 0, err
	}

	info, err := os.Stat(path)
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("stat temp archive: %w", err)
	}
	return path, info.Size(), nil
}

// UnpackFile expands the archive at path under dest.
func UnpackFile(path, dest string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	return Unpack(f, dest)
}

// TempArchivePath returns a fresh archive name under dir.
func TempArchivePath(dir string) string {
	return filepath.Join(dir, "nagini-"+uuid.NewString()+ArchiveExt)
}

// CopyTree copies src to dst (dst's parent must be writable) by streaming an
// archive through a pipe.
func CopyTree(src, dst string) error {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(Pack(src, pw, PackOptions{RootName: filepath.Base(dst)}))
	}()
	err := Unpack(pr, filepath.Dir(dst))
	_ = pr.CloseWithError(err)
	if err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return nil
}
