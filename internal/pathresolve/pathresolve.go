// Package pathresolve resolves a database name or filesystem path to the
// root directory and substrate locations the engine persists under.
package pathresolve

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grizabella-go/grizabella/pkg/types"
)

// Locations holds the concrete filesystem paths for one logical database's
// three substrates, all rooted at Root.
type Locations struct {
	Root           string
	RelationalFile string
	VectorDir      string
	GraphDir       string
}

const (
	relationalFileName = "sqlite.db"
	vectorDirName      = "lancedb_data"
	graphDirName       = "kuzu_data"
)

// Resolve maps nameOrPath to its Locations. A bare name (containing no path
// separator) resolves under "<home>/.grizabella/<name>/"; anything
// containing a separator is used as the root directly. When
// createIfNotExists is true, the root and substrate subdirectories are
// created as needed; otherwise the root must already exist.
func Resolve(nameOrPath string, createIfNotExists bool) (Locations, error) {
	if nameOrPath == "" {
		return Locations{}, types.ConfigurationError("resolve", fmt.Errorf("database name or path is empty"))
	}

	root := nameOrPath
	if !strings.ContainsRune(nameOrPath, os.PathSeparator) && !strings.ContainsRune(nameOrPath, '/') {
		home, err := os.UserHomeDir()
		if err != nil {
			return Locations{}, types.ConfigurationError("resolve", fmt.Errorf("resolve home directory: %w", err))
		}
		root = filepath.Join(home, ".grizabella", nameOrPath)
	}
	root = filepath.Clean(root)

	loc := Locations{
		Root:           root,
		RelationalFile: filepath.Join(root, relationalFileName),
		VectorDir:      filepath.Join(root, vectorDirName),
		GraphDir:       filepath.Join(root, graphDirName),
	}

	if createIfNotExists {
		for _, dir := range []string{loc.Root, loc.VectorDir, loc.GraphDir} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return Locations{}, types.ConfigurationError("resolve", fmt.Errorf("create %q: %w", dir, err))
			}
		}
		return loc, nil
	}

	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%q is not a directory", root)
		}
		return Locations{}, types.ConfigurationError("resolve", fmt.Errorf("database root %q does not exist: %w", root, err))
	}
	return loc, nil
}
