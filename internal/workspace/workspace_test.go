package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, text string) string {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(text), 0o644))
	return p
}

func newProject(t *testing.T) (string, *Workspace) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "src/Token.sol", "contract Token {}")
	writeFile(t, root, "src/Base.sol", "contract Base {}")
	writeFile(t, root, "src/README.md", "docs")
	writeFile(t, root, "lib/forge-std/Test.sol", "contract Test {}")
	writeFile(t, root, "node_modules/oz/ERC20.sol", "contract ERC20 {}")
	writeFile(t, root, ".cache/Hidden.sol", "contract Hidden {}")
	w := New(root)
	require.NoError(t, w.Discover(context.Background()))
	return root, w
}

// =============================================================================
// Discovery
// =============================================================================

func TestMatch(t *testing.T) {
	t.Parallel()
	w := New("/p")

	assert.True(t, w.Match("/p/Token.sol"))
	assert.True(t, w.Match("/p/src/a/b/Token.sol"))
	assert.False(t, w.Match("/p/src/notes.txt"))
	assert.False(t, w.Match("/p/lib/x/Y.sol"))
	assert.False(t, w.Match("/p/node_modules/x/Y.sol"))
	assert.False(t, w.Match("/elsewhere/Token.sol"))
}

func TestDiscover_AppliesGlobs(t *testing.T) {
	t.Parallel()
	root, w := newProject(t)

	assert.Equal(t, []string{
		filepath.Join(root, "src/Base.sol"),
		filepath.Join(root, "src/Token.sol"),
	}, w.Files())
}

func TestDiscover_CustomGlobs(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "contracts/A.sol", "")
	writeFile(t, root, "test/ATest.sol", "")
	w := New(root, WithInclude("contracts/**/*.sol"), WithExclude())
	require.NoError(t, w.Discover(context.Background()))

	assert.Equal(t, []string{filepath.Join(root, "contracts/A.sol")}, w.Files())
}

// =============================================================================
// Overlays and capture
// =============================================================================

func TestCapture_OverlayWinsOverDisk(t *testing.T) {
	t.Parallel()
	root, w := newProject(t)
	token := filepath.Join(root, "src/Token.sol")

	w.Open(token, "contract Token { uint x; }", 7)
	p, err := w.Capture().Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, root, p.Root)
	require.Len(t, p.Files, 2)
	assert.Equal(t, "contract Base {}", p.Files[0].Text)
	assert.Equal(t, int32(0), p.Files[0].Version)
	assert.Equal(t, "contract Token { uint x; }", p.Files[1].Text)
	assert.Equal(t, int32(7), p.Files[1].Version)
}

func TestCapture_FrozenAgainstLaterEdits(t *testing.T) {
	t.Parallel()
	root, w := newProject(t)
	token := filepath.Join(root, "src/Token.sol")

	w.Open(token, "v1", 1)
	c := w.Capture()
	w.Open(token, "v2", 2)
	w.Open(filepath.Join(root, "src/New.sol"), "new", 1)

	p, err := c.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, p.Files, 2)
	assert.Equal(t, "v1", p.Files[1].Text)
}

func TestCapture_UnsavedFileIncluded(t *testing.T) {
	t.Parallel()
	root, w := newProject(t)
	scratch := filepath.Join(root, "src/Scratch.sol")

	w.Open(scratch, "contract Scratch {}", 1)
	assert.Contains(t, w.Files(), scratch)

	assert.True(t, w.Close(scratch))
	assert.False(t, w.Close(scratch))
	assert.NotContains(t, w.Files(), scratch)
}

func TestCapture_SkipsDeletedFiles(t *testing.T) {
	t.Parallel()
	root, w := newProject(t)
	c := w.Capture()
	require.NoError(t, os.Remove(filepath.Join(root, "src/Base.sol")))

	p, err := c.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, p.Files, 1)
	assert.Equal(t, filepath.Join(root, "src/Token.sol"), p.Files[0].Path)
}

func TestCapture_Cancelled(t *testing.T) {
	t.Parallel()
	_, w := newProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Capture().Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Apply
// =============================================================================

func TestApply(t *testing.T) {
	t.Parallel()
	root, w := newProject(t)

	added := writeFile(t, root, "src/Added.sol", "contract Added {}")
	base := filepath.Join(root, "src/Base.sol")
	require.NoError(t, os.Remove(base))

	changed := w.Apply([]string{added, base, filepath.Join(root, "src/README.md")})
	assert.True(t, changed)
	assert.Equal(t, []string{added, filepath.Join(root, "src/Token.sol")}, w.Files())

	assert.False(t, w.Apply([]string{filepath.Join(root, "lib/forge-std/Test.sol")}))
}
