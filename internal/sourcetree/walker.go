package sourcetree

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"
)

const SolidityExtension = ".sol"

var DefaultExcludes = []string{"node_modules", "test"}

type Options struct {
	Extensions []string
	Excludes   []string
}

func DefaultOptions() Options {
	return Options{
		Extensions: []string{SolidityExtension},
		Excludes:   DefaultExcludes,
	}
}

// Tree is the set of eligible source files under a root, in lexical order.
type Tree struct {
	Root  string
	Files []string
}

func (t *Tree) Len() int { return len(t.Files) }

// Walk enumerates eligible files under root. A directory is pruned when its
// path relative to root contains one of the exclusion substrings, compared
// case-insensitively.
func Walk(ctx context.Context, root string, opts Options, logger *logrus.Logger) (*Tree, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{SolidityExtension}
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat source root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root %s is not a directory", root)
	}

	tree := &Tree{Root: root}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			logger.WithFields(logrus.Fields{"path": path, "error": walkErr}).Warn("Skipping unreadable path")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && Excluded(relative(root, path), opts.Excludes) {
				return filepath.SkipDir
			}
			return nil
		}
		if !hasExtension(path, opts.Extensions) {
			return nil
		}
		if !d.Type().IsRegular() && !regularLink(path, d) {
			return nil
		}
		tree.Files = append(tree.Files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return tree, nil
}

// regularLink reports whether d is a symlink resolving to a regular file.
// Links to directories are never followed.
func regularLink(path string, d fs.DirEntry) bool {
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Excluded reports whether rel contains any of the exclusion substrings.
func Excluded(rel string, excludes []string) bool {
	lower := strings.ToLower(filepath.ToSlash(rel))
	for _, ex := range excludes {
		if ex != "" && strings.Contains(lower, strings.ToLower(ex)) {
			return true
		}
	}
	return false
}

func relative(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}

func hasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// Digest hashes the relative path and content of every file with xxh3.
// Unreadable files contribute only their path.
func (t *Tree) Digest() string {
	entries := make([]string, 0, len(t.Files))
	for _, f := range t.Files {
		rel := filepath.ToSlash(relative(t.Root, f))
		data, err := os.ReadFile(f)
		if err != nil {
			entries = append(entries, rel)
			continue
		}
		entries = append(entries, rel+":"+strconv.FormatUint(xxh3.Hash(data), 16))
	}
	sort.Strings(entries)
	return fmt.Sprintf("%016x", xxh3.HashString(strings.Join(entries, "\n")))
}

func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
