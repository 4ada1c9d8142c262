package sync

import (
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/tree_sync/internal/fsys"
)

const gitDirName = ".git"

// discoverDeclarations walks every source root and returns the lines of each
// declaration file found, in walk order. Other files are copy candidates and
// are not read.
func discoverDeclarations(fs fsys.FS, sources []string, cfg IgnoreConfig, logger *zap.Logger) ([]RawPattern, error) {
	var raw []RawPattern
	if cfg.IgnoreGit {
		raw = append(raw, RawPattern{Text: gitDirName, Provenance: FromBuiltin})
	}

	declName := cfg.declarationFileName()
	for _, source := range sources {
		kind, err := fs.Stat(source)
		if err != nil {
			return nil, err
		}
		if kind == fsys.Missing {
			return nil, errors.Wrapf(ErrSourceNotFound, "%q", source)
		}

		walkDeclarations(fs, source, kind, declName, cfg.IgnoreGit, logger, func(path string) {
			data, err := fs.ReadFile(path)
			if err != nil {
				logger.Warn("unreadable declaration file, skipping", zap.String("path", path), zap.Error(err))
				return
			}
			logger.Debug("found declaration file", zap.String("path", path))
			raw = append(raw, rawLines(splitLines(data), FromDeclarationFile, path)...)
		})
	}
	return raw, nil
}

// walkDeclarations reports every declaration file below path. Symbolic links
// are not followed, and entries that cannot be read are logged and skipped.
func walkDeclarations(fs fsys.FS, path string, kind fsys.Kind, declName string, skipGit bool, logger *zap.Logger, found func(string)) {
	if kind == fsys.File {
		if filepath.Base(path) == declName {
			found(path)
		}
		return
	}
	if kind != fsys.Dir {
		return
	}

	names, err := fs.ReadDir(path)
	if err != nil {
		logger.Warn("cannot list directory during discovery", zap.String("path", path), zap.Error(err))
		return
	}
	for _, name := range names {
		child := filepath.Join(path, name)
		childKind, err := fs.Lstat(child)
		if err != nil {
			logger.Warn("cannot stat entry during discovery", zap.String("path", child), zap.Error(err))
			continue
		}
		if childKind == fsys.Dir && skipGit && name == gitDirName {
			continue
		}
		walkDeclarations(fs, child, childKind, declName, skipGit, logger, found)
	}
}
