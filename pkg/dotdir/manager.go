// Package dotdir resolves the .rapport/ directory that holds config.toml and
// the default SQLite database.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirName = ".rapport"

	// DatabaseFile is the default SQLite file name inside the .rapport/ directory.
	DatabaseFile = "rapport.sqlite"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path to a .rapport/ directory.
// Order of precedence is as follows:
//  1. Provided override (created if missing)
//  2. Local ./.rapport/ dir
//  3. Home ~/.rapport/ dir
//
// An empty string is returned when none of them apply.
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating rapport directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	if isDir(filepath.Join(cwd, dirName)) {
		return filepath.Join(cwd, dirName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", nil
	}
	if isDir(filepath.Join(home, dirName)) {
		return filepath.Join(home, dirName), nil
	}

	return "", nil
}

// Init creates the .rapport/ directory under base (or the home directory when
// base is empty) and returns its absolute path.
func (m *Manager) Init(base string) (string, error) {
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		base = home
	}

	dir := filepath.Join(base, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating rapport directory %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

// SQLitePath returns the database path to use when none is configured:
// the file inside the resolved .rapport/ directory, or ./rapport.sqlite.
func (m *Manager) SQLitePath(overrideDir string) (string, error) {
	target, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	if target == "" {
		return DatabaseFile, nil
	}
	return filepath.Join(target, DatabaseFile), nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
