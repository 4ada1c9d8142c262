// Package fsys is the filesystem collaborator used by the synchronizer.
// Every backend (the real OS filesystem, the in-memory fake, go-billy
// filesystems) satisfies FS, so the sync engine never touches os directly.
package fsys

import (
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// Kind classifies a path.
type Kind int

const (
	Missing Kind = iota
	File
	Dir
	// Symlink is only reported by Lstat.
	Symlink
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Dir:
		return "directory"
	case Symlink:
		return "symlink"
	default:
		return "missing"
	}
}

var (
	// ErrNotDir is returned when a directory operation hits a file.
	ErrNotDir = errors.New("not a directory")
	// ErrIsDir is returned when a file operation hits a directory.
	ErrIsDir = errors.New("is a directory")
	// ErrDirNotEmpty is returned by a non-recursive RemoveDir on a populated directory.
	ErrDirNotEmpty = errors.New("directory not empty")
)

// FS is the set of primitives the synchronizer needs.
type FS interface {
	// Stat reports the kind of path, following symbolic links. A missing
	// path is not an error.
	Stat(path string) (Kind, error)
	// Lstat is Stat without following a final symbolic link.
	Lstat(path string) (Kind, error)
	// ReadDir lists the child names of a directory in lexical order.
	ReadDir(path string) ([]string, error)
	ReadFile(path string) ([]byte, error)
	// WriteFile creates or truncates path, creating missing parents.
	WriteFile(path string, data []byte) error
	// CopyFile overwrites dst with the contents of src and returns the number
	// of bytes written.
	CopyFile(src, dst string) (int64, error)
	MkdirAll(path string) error
	// RemoveFile deletes a single file; it refuses directories.
	RemoveFile(path string) error
	// RemoveDir deletes a directory. Without recursive it fails on a
	// non-empty directory.
	RemoveDir(path string, recursive bool) error
}

func kindOf(info fs.FileInfo) Kind {
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		return Symlink
	case info.IsDir():
		return Dir
	default:
		return File
	}
}

// OnDisk reports whether filesystem is the operating system one, the only
// filesystem change notifications can be received for.
func OnDisk(filesystem FS) bool {
	d, ok := filesystem.(interface{ OnDisk() bool })
	return ok && d.OnDisk()
}

// Tree is a directory literal: string values are file contents, Tree values
// are subdirectories.
type Tree map[string]any

// Populate writes tree under root, creating root if needed.
func Populate(fs FS, root string, tree Tree) error {
	if err := fs.MkdirAll(root); err != nil {
		return err
	}
	for name, node := range tree {
		path := filepath.Join(root, name)
		switch value := node.(type) {
		case string:
			if err := fs.WriteFile(path, []byte(value)); err != nil {
				return err
			}
		case []byte:
			if err := fs.WriteFile(path, value); err != nil {
				return err
			}
		case Tree:
			if err := Populate(fs, path, value); err != nil {
				return err
			}
		case map[string]any:
			if err := Populate(fs, path, Tree(value)); err != nil {
				return err
			}
		default:
			return errors.Errorf("populate %q: unsupported node type %T", path, node)
		}
	}
	return nil
}

// Snapshot reads the subtree at root back into a Tree. File contents are
// returned as strings; symbolic links below root are left out.
func Snapshot(fs FS, root string) (Tree, error) {
	names, err := fs.ReadDir(root)
	if err != nil {
		return nil, err
	}
	tree := Tree{}
	for _, name := range names {
		path := filepath.Join(root, name)
		kind, err := fs.Lstat(path)
		if err != nil {
			return nil, err
		}
		switch kind {
		case Dir:
			sub, err := Snapshot(fs, path)
			if err != nil {
				return nil, err
			}
			tree[name] = sub
		case File:
			data, err := fs.ReadFile(path)
			if err != nil {
				return nil, err
			}
			tree[name] = string(data)
		}
	}
	return tree, nil
}

// Paths flattens a Tree into sorted slash-separated relative paths.
// Directories end with "/".
func (t Tree) Paths() []string {
	var out []string
	var walk func(prefix string, tree Tree)
	walk = func(prefix string, tree Tree) {
		for name, node := range tree {
			switch sub := node.(type) {
			case Tree:
				out = append(out, prefix+name+"/")
				walk(prefix+name+"/", sub)
				continue
			case map[string]any:
				out = append(out, prefix+name+"/")
				walk(prefix+name+"/", Tree(sub))
				continue
			}
			out = append(out, prefix+name)
		}
	}
	walk("", t)
	sort.Strings(out)
	return out
}

func sortedNames(names []string) []string {
	sort.Strings(names)
	return names
}
