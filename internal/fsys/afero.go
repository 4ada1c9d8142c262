package fsys

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Afero adapts an afero.Fs to FS.
type Afero struct {
	fs afero.Fs
}

// NewAfero wraps fs.
func NewAfero(fs afero.Fs) *Afero {
	return &Afero{fs: fs}
}

// NewOS returns the real filesystem.
func NewOS() *Afero {
	return NewAfero(afero.NewOsFs())
}

// NewMem returns an in-memory filesystem seeded with tree at "/".
func NewMem(tree Tree) (*Afero, error) {
	fs := NewAfero(afero.NewMemMapFs())
	if err := Populate(fs, "/", tree); err != nil {
		return nil, err
	}
	return fs, nil
}

func (a *Afero) Stat(path string) (Kind, error) {
	info, err := a.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Missing, nil
		}
		return Missing, errors.Wrapf(err, "stat %q", path)
	}
	return kindOf(info), nil
}

// Lstat falls back to Stat when the wrapped filesystem cannot report links.
func (a *Afero) Lstat(path string) (Kind, error) {
	lstater, ok := a.fs.(afero.Lstater)
	if !ok {
		return a.Stat(path)
	}
	info, _, err := lstater.LstatIfPossible(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Missing, nil
		}
		return Missing, errors.Wrapf(err, "lstat %q", path)
	}
	return kindOf(info), nil
}

// OnDisk reports whether a wraps the real filesystem.
func (a *Afero) OnDisk() bool {
	_, ok := a.fs.(*afero.OsFs)
	return ok
}

func (a *Afero) ReadDir(path string) ([]string, error) {
	infos, err := afero.ReadDir(a.fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read dir %q", path)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return sortedNames(names), nil
}

func (a *Afero) ReadFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %q", path)
	}
	return data, nil
}

func (a *Afero) WriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		if err := a.fs.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "mkdir %q", dir)
		}
	}
	if err := afero.WriteFile(a.fs, path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %q", path)
	}
	return nil
}

func (a *Afero) CopyFile(src, dst string) (int64, error) {
	in, err := a.fs.Open(src)
	if err != nil {
		return 0, errors.Wrapf(err, "open %q", src)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat %q", src)
	}
	if info.IsDir() {
		return 0, errors.Wrapf(ErrIsDir, "copy %q", src)
	}

	out, err := a.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, errors.Wrapf(err, "create %q", dst)
	}
	n, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		return n, errors.Wrapf(copyErr, "copy %q to %q", src, dst)
	}
	if closeErr != nil {
		return n, errors.Wrapf(closeErr, "close %q", dst)
	}
	return n, nil
}

func (a *Afero) MkdirAll(path string) error {
	if err := a.fs.MkdirAll(path, 0o755); err != nil {
		return errors.Wrapf(err, "mkdir %q", path)
	}
	return nil
}

func (a *Afero) RemoveFile(path string) error {
	kind, err := a.Lstat(path)
	if err != nil {
		return err
	}
	if kind == Dir {
		return errors.Wrapf(ErrIsDir, "remove %q", path)
	}
	if err := a.fs.Remove(path); err != nil {
		return errors.Wrapf(err, "remove %q", path)
	}
	return nil
}

func (a *Afero) RemoveDir(path string, recursive bool) error {
	kind, err := a.Lstat(path)
	if err != nil {
		return err
	}
	if kind != Dir {
		return errors.Wrapf(ErrNotDir, "remove dir %q", path)
	}
	if recursive {
		if err := a.fs.RemoveAll(path); err != nil {
			return errors.Wrapf(err, "remove all %q", path)
		}
		return nil
	}
	// MemMapFs removes populated directories without complaint.
	names, err := a.ReadDir(path)
	if err != nil {
		return err
	}
	if len(names) > 0 {
		return errors.Wrapf(ErrDirNotEmpty, "remove dir %q", path)
	}
	if err := a.fs.Remove(path); err != nil {
		return errors.Wrapf(err, "remove dir %q", path)
	}
	return nil
}
