// Package atomicfs writes files and directories so that readers only ever see complete content
package atomicfs

import (
	"bufio"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
)

// File is a pending write to Path; nothing is visible at Path until Commit
type File struct {
	Path string
	tmp  *os.File
	buf  *bufio.Writer
	done bool
}

// Create opens a temp file next to path
func Create(path string) (*File, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "mkdir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "create temp for %s", path)
	}
	return &File{Path: path, tmp: tmp, buf: bufio.NewWriterSize(tmp, 1<<20)}, nil
}

// Write buffers p
func (f *File) Write(p []byte) (int, error) { return f.buf.Write(p) }

// Commit flushes, fsyncs, renames over Path and fsyncs the parent directory
func (f *File) Commit() error {
	if f.done {
		return perr.New(perr.ErrorCodeIO, "atomicfs: commit after close")
	}
	f.done = true
	name := f.tmp.Name()
	if err := f.buf.Flush(); err != nil {
		_ = f.tmp.Close()
		_ = os.Remove(name)
		return perr.Wrapf(err, perr.ErrorCodeIO, "flush %s", f.Path)
	}
	if err := f.tmp.Sync(); err != nil {
		_ = f.tmp.Close()
		_ = os.Remove(name)
		return perr.Wrapf(err, perr.ErrorCodeIO, "fsync %s", f.Path)
	}
	if err := f.tmp.Close(); err != nil {
		_ = os.Remove(name)
		return perr.Wrapf(err, perr.ErrorCodeIO, "close %s", f.Path)
	}
	if err := os.Rename(name, f.Path); err != nil {
		_ = os.Remove(name)
		return perr.Wrapf(err, perr.ErrorCodeIO, "rename into %s", f.Path)
	}
	return SyncDir(filepath.Dir(f.Path))
}

// Abort drops the pending write; safe after Commit
func (f *File) Abort() {
	if f.done {
		return
	}
	f.done = true
	_ = f.tmp.Close()
	_ = os.Remove(f.tmp.Name())
}

// WriteFile atomically replaces path with data
func WriteFile(path string, data []byte) error {
	f, err := Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Abort()
		return perr.Wrapf(err, perr.ErrorCodeIO, "write %s", path)
	}
	return f.Commit()
}

// WriteFrom atomically replaces path with everything read from r
func WriteFrom(path string, r io.Reader) (int64, error) {
	f, err := Create(path)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if err != nil {
		f.Abort()
		return n, perr.Wrapf(err, perr.ErrorCodeIO, "write %s", path)
	}
	return n, f.Commit()
}

// SyncDir fsyncs a directory so renames and creates inside it survive a crash
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "open dir %s", dir)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "fsync dir %s", dir)
	}
	return nil
}

// SyncTree fsyncs every regular file and directory under root, deepest first
func SyncTree(root string) error {
	var dirs []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, p)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		serr := f.Sync()
		cerr := f.Close()
		if serr != nil {
			return serr
		}
		return cerr
	})
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "fsync tree %s", root)
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := SyncDir(dirs[i]); err != nil {
			return err
		}
	}
	return nil
}

// PublishDir makes staged visible at final: staged is fsynced, any previous final
// is removed, staged is renamed into place and the parent is fsynced.
// A crash at any point leaves either no final dir or a complete one
func PublishDir(staged, final string) error {
	if err := SyncTree(staged); err != nil {
		return err
	}
	if err := os.RemoveAll(final); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "remove previous %s", final)
	}
	if err := os.Rename(staged, final); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "publish %s", final)
	}
	return SyncDir(filepath.Dir(final))
}
