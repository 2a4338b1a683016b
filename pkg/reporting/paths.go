package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PathManager resolves where session reports land on disk.
type PathManager struct{}

// NewPathManager creates a new path manager
func NewPathManager() *PathManager {
	return &PathManager{}
}

// SessionOutputDir returns the per-symbol, per-day report directory.
func (p *PathManager) SessionOutputDir(symbol string, day time.Time) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		s = "UNKNOWN"
	}
	return filepath.Join("results", fmt.Sprintf("%s_%s", s, day.Format("2006-01-02")))
}

// EnsureDirectoryExists creates the parent directory if it doesn't exist
func (p *PathManager) EnsureDirectoryExists(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// Package-level convenience function
func SessionOutputDir(symbol string, day time.Time) string {
	return NewPathManager().SessionOutputDir(symbol, day)
}
