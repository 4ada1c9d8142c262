package fsys

import (
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/pkg/errors"
)

// Billy adapts a go-billy filesystem to FS.
type Billy struct {
	fs billy.Filesystem
}

// NewBilly wraps fs.
func NewBilly(fs billy.Filesystem) *Billy {
	return &Billy{fs: fs}
}

// NewBillyMem returns a billy memfs seeded with tree at root.
func NewBillyMem(root string, tree Tree) (*Billy, error) {
	fs := NewBilly(memfs.New())
	if err := Populate(fs, root, tree); err != nil {
		return nil, err
	}
	return fs, nil
}

func (b *Billy) Stat(path string) (Kind, error) {
	info, err := b.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Missing, nil
		}
		return Missing, errors.Wrapf(err, "billy: stat %q", path)
	}
	return kindOf(info), nil
}

func (b *Billy) Lstat(path string) (Kind, error) {
	info, err := b.fs.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Missing, nil
		}
		return Missing, errors.Wrapf(err, "billy: lstat %q", path)
	}
	return kindOf(info), nil
}

func (b *Billy) ReadDir(path string) ([]string, error) {
	infos, err := b.fs.ReadDir(path)
	if err != nil {
		return nil, errors.Wrapf(err, "billy: read dir %q", path)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return sortedNames(names), nil
}

func (b *Billy) ReadFile(path string) ([]byte, error) {
	data, err := util.ReadFile(b.fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "billy: read %q", path)
	}
	return data, nil
}

func (b *Billy) WriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		if err := b.fs.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "billy: mkdir %q", dir)
		}
	}
	if err := util.WriteFile(b.fs, path, data, 0o644); err != nil {
		return errors.Wrapf(err, "billy: write %q", path)
	}
	return nil
}

func (b *Billy) CopyFile(src, dst string) (int64, error) {
	info, err := b.fs.Stat(src)
	if err != nil {
		return 0, errors.Wrapf(err, "billy: stat %q", src)
	}
	if info.IsDir() {
		return 0, errors.Wrapf(ErrIsDir, "billy: copy %q", src)
	}

	in, err := b.fs.Open(src)
	if err != nil {
		return 0, errors.Wrapf(err, "billy: open %q", src)
	}
	defer in.Close()

	out, err := b.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, errors.Wrapf(err, "billy: create %q", dst)
	}
	n, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		return n, errors.Wrapf(copyErr, "billy: copy %q to %q", src, dst)
	}
	if closeErr != nil {
		return n, errors.Wrapf(closeErr, "billy: close %q", dst)
	}
	return n, nil
}

func (b *Billy) MkdirAll(path string) error {
	if err := b.fs.MkdirAll(path, 0o755); err != nil {
		return errors.Wrapf(err, "billy: mkdir %q", path)
	}
	return nil
}

func (b *Billy) RemoveFile(path string) error {
	kind, err := b.Lstat(path)
	if err != nil {
		return err
	}
	if kind == Dir {
		return errors.Wrapf(ErrIsDir, "billy: remove %q", path)
	}
	if err := b.fs.Remove(path); err != nil {
		return errors.Wrapf(err, "billy: remove %q", path)
	}
	return nil
}

func (b *Billy) RemoveDir(path string, recursive bool) error {
	kind, err := b.Lstat(path)
	if err != nil {
		return err
	}
	if kind != Dir {
		return errors.Wrapf(ErrNotDir, "billy: remove dir %q", path)
	}
	if recursive {
		if err := util.RemoveAll(b.fs, path); err != nil {
			return errors.Wrapf(err, "billy: remove all %q", path)
		}
		return nil
	}
	names, err := b.ReadDir(path)
	if err != nil {
		return err
	}
	if len(names) > 0 {
		return errors.Wrapf(ErrDirNotEmpty, "billy: remove dir %q", path)
	}
	if err := b.fs.Remove(path); err != nil {
		return errors.Wrapf(err, "billy: remove dir %q", path)
	}
	return nil
}
