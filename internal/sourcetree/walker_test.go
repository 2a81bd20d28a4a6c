package sourcetree

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestWalkExclusions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "contracts/Pair.sol", "contract Pair {}")
	writeFile(t, root, "contracts/lib/Math.SOL", "library Math {}")
	writeFile(t, root, "node_modules/@uniswap/IUniswapV2Pair.sol", "interface IUniswapV2Pair {}")
	writeFile(t, root, "Tests/PairTest.sol", "contract PairTest {}")
	writeFile(t, root, "contracts/mocks/unittests/Mock.sol", "contract Mock {}")
	writeFile(t, root, "contracts/README.md", "docs")

	tree, err := Walk(context.Background(), root, DefaultOptions(), logrus.New())
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	want := []string{
		filepath.Join(root, "contracts/Pair.sol"),
		filepath.Join(root, "contracts/lib/Math.SOL"),
	}
	if len(tree.Files) != len(want) {
		t.Fatalf("Walk() files = %v, want %v", tree.Files, want)
	}
	for i := range want {
		if tree.Files[i] != want[i] {
			t.Errorf("Walk() files[%d] = %s, want %s", i, tree.Files[i], want[i])
		}
	}
}

func TestWalkSymlinks(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "repo")
	writeFile(t, root, "contracts/Pair.sol", "contract Pair {}")
	shared := writeFile(t, base, "shared/Lib.sol", "library Lib {}")
	writeFile(t, base, "vendor/Other.sol", "contract Other {}")

	links := map[string]string{
		"contracts/Lib.sol":  shared,
		"contracts/vendor":   filepath.Join(base, "vendor"),
		"contracts/Gone.sol": filepath.Join(base, "missing.sol"),
	}
	for rel, target := range links {
		if err := os.Symlink(target, filepath.Join(root, rel)); err != nil {
			t.Skipf("symlinks unsupported: %v", err)
		}
	}

	tree, err := Walk(context.Background(), root, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	want := []string{
		filepath.Join(root, "contracts/Lib.sol"),
		filepath.Join(root, "contracts/Pair.sol"),
	}
	if len(tree.Files) != len(want) {
		t.Fatalf("Walk() files = %v, want %v", tree.Files, want)
	}
	for i := range want {
		if tree.Files[i] != want[i] {
			t.Errorf("Walk() files[%d] = %s, want %s", i, tree.Files[i], want[i])
		}
	}
}

func TestWalkRootNotExcluded(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "test-checkout")
	writeFile(t, root, "src/Router.sol", "contract Router {}")

	tree, err := Walk(context.Background(), root, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if tree.Len() != 1 {
		t.Errorf("Walk() found %d files, want 1", tree.Len())
	}
}

func TestWalkMissingRoot(t *testing.T) {
	_, err := Walk(context.Background(), filepath.Join(t.TempDir(), "missing"), DefaultOptions(), nil)
	if err == nil {
		t.Fatal("Walk() expected error for missing root")
	}
	if !IsNotExist(err) {
		t.Errorf("IsNotExist(%v) = false, want true", err)
	}
}

func TestWalkCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.sol", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Walk(ctx, root, DefaultOptions(), nil); err == nil {
		t.Fatal("Walk() expected error on cancelled context")
	}
}

func TestExcluded(t *testing.T) {
	tests := []struct {
		rel  string
		want bool
	}{
		{"contracts", false},
		{"node_modules/x", true},
		{"contracts/Testing", true},
		{"LATEST", true},
		{"src/core", false},
	}
	for _, tt := range tests {
		if got := Excluded(tt.rel, DefaultExcludes); got != tt.want {
			t.Errorf("Excluded(%q) = %v, want %v", tt.rel, got, tt.want)
		}
	}
}

func TestDigestStable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.sol", "contract A {}")
	writeFile(t, root, "b.sol", "contract B {}")

	tree, err := Walk(context.Background(), root, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	first := tree.Digest()
	if second := tree.Digest(); first != second {
		t.Errorf("Digest() = %s then %s, want stable", first, second)
	}

	writeFile(t, root, "b.sol", "contract B { uint x; }")
	if changed := tree.Digest(); changed == first {
		t.Errorf("Digest() unchanged after content edit: %s", changed)
	}
}
