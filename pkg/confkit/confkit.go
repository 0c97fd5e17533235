// Package confkit holds the small helpers shared by the config loaders:
// path resolution against the main config file, project root lookup and
// split config sections.
package confkit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ResolvePath expands environment variables in file and joins it with base
// unless it is already absolute.
func ResolvePath(base, file string) string {
	file = os.ExpandEnv(file)
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(base, file)
}

// BaseDir is the directory split sections of mainPath are resolved against.
func BaseDir(mainPath string) string {
	return filepath.Dir(mainPath)
}

// ProjectRoot walks up from the working directory to the first directory
// holding a go.mod or .git entry. The working directory itself is returned
// when no marker is found.
func ProjectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("confkit: getwd: %w", err)
	}
	for dir := wd; ; {
		if isProjectRoot(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return wd, nil
		}
		dir = parent
	}
}

// ProjectPath joins rel with ProjectRoot.
func ProjectPath(rel string) (string, error) {
	root, err := ProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, rel), nil
}

func isProjectRoot(dir string) bool {
	for _, marker := range []string{"go.mod", ".git"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// Section is a part of the main config kept in its own file. Only File is
// read from the main config; Value is filled by Hydrate.
type Section[T any] struct {
	File  string `json:",optional"`
	Value *T     `json:"-"`
}

// Hydrate loads File relative to base with loader. An empty File leaves the
// section unset. On success File holds the resolved path.
func (s *Section[T]) Hydrate(base string, loader func(string) (*T, error)) error {
	if s.File == "" {
		return nil
	}
	p := ResolvePath(base, s.File)
	v, err := loader(p)
	if err != nil {
		return fmt.Errorf("confkit: section %s: %w", p, err)
	}
	if v == nil {
		return fmt.Errorf("confkit: section %s: %w", p, errEmptySection)
	}
	s.File, s.Value = p, v
	return nil
}

// Loaded reports whether Hydrate produced a value.
func (s *Section[T]) Loaded() bool {
	return s.Value != nil
}

var errEmptySection = errors.New("loader returned no value")
