// Package security guards filesystem access against path traversal (CWE-22).
//
// The ingestion pipeline opens files at paths stored in the database; a
// tampered asset row must not be able to point the service at arbitrary
// files. A Guard confines resolved paths, including symlink targets, to its
// configured root directories.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Guard validates that paths stay inside a set of root directories.
type Guard struct {
	roots []string
}

// NewGuard creates a Guard over the given root directories. At least one
// root is required. Roots are resolved through symlinks so containment
// checks compare real paths on both sides.
func NewGuard(roots ...string) (*Guard, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("at least one root directory is required")
	}

	resolved := make([]string, 0, len(roots))
	for _, root := range roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolving root %s: %w", root, err)
		}
		realRoot, err := filepath.EvalSymlinks(absRoot)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("resolving root %s: %w", root, err)
			}
			// The root may be created later; keep the absolute form.
			realRoot = absRoot
		}
		resolved = append(resolved, filepath.Clean(realRoot))
	}
	return &Guard{roots: resolved}, nil
}

// Resolve cleans path, follows symlinks and verifies the real location lies
// under one of the guard's roots. Returns the safe absolute path.
//
// A path that does not exist yet is accepted as long as its location is
// inside a root; this covers files about to be created.
func (g *Guard) Resolve(path string) (string, error) {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	realPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("resolving symlinks: %w", err)
		}
		// The file does not exist yet; resolve its parent instead so a
		// file about to be created in a symlinked directory still checks
		// against the real location.
		dir, base := filepath.Split(absPath)
		realDir, dirErr := filepath.EvalSymlinks(filepath.Clean(dir))
		if dirErr != nil {
			realPath = absPath
		} else {
			realPath = filepath.Join(realDir, base)
		}
	}

	if !g.within(realPath) {
		return "", fmt.Errorf("access denied: path %q is outside the data directory", path)
	}
	return realPath, nil
}

func (g *Guard) within(absPath string) bool {
	withSep := filepath.Clean(absPath) + string(filepath.Separator)
	for _, root := range g.roots {
		if absPath == root || strings.HasPrefix(withSep, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
