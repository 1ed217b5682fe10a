package pathresolve

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveCreatesSubstrateDirs(t *testing.T) {
	root := filepath.Join(t.TempDir(), "mydb")
	loc, err := Resolve(root, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if loc.Root != filepath.Clean(root) {
		t.Errorf("Root = %q, want %q", loc.Root, root)
	}
	for _, dir := range []string{loc.Root, loc.VectorDir, loc.GraphDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("expected directory %q to exist", dir)
		}
	}
}

func TestResolveMissingWithoutCreate(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing")
	if _, err := Resolve(root, false); err == nil {
		t.Fatal("expected error for missing root without createIfNotExists")
	}
}

func TestResolveEmptyName(t *testing.T) {
	if _, err := Resolve("", true); err == nil {
		t.Fatal("expected error for empty name")
	}
}
