package linkverify

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSite(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestVerify_ReportsMissingTargets(t *testing.T) {
	root := t.TempDir()
	writeSite(t, root, map[string]string{
		"index.html": `<a href="a.html">A</a><a href="b/c.html">C</a><a href="gone.html">Gone</a>`,
		"a.html":     `<a href="index.html">home</a><a href="https://example.com/x">ext</a><a href="#x">frag</a>`,
		"b/c.html":   `<a href="../index.html">home</a><img src="missing.png">`,
	})

	broken, err := NewVerifier(root).Verify(context.Background())
	require.NoError(t, err)
	require.Len(t, broken, 2)

	assert.Equal(t, "b/c.html", broken[0].Page)
	assert.Equal(t, "b/missing.png", broken[0].Target)
	assert.Equal(t, "img", broken[0].Tag)

	assert.Equal(t, "index.html", broken[1].Page)
	assert.Equal(t, "gone.html", broken[1].URL)
	assert.Contains(t, broken[1].String(), "gone.html")
}

func TestVerify_CleanSite(t *testing.T) {
	root := t.TempDir()
	writeSite(t, root, map[string]string{
		"index.html":      `<a href="docs/">Docs</a>`,
		"docs/index.html": `<a href="/index.html">home</a>`,
	})
	broken, err := NewVerifier(root).Verify(context.Background())
	require.NoError(t, err)
	assert.Empty(t, broken)
}

func TestVerify_Canceled(t *testing.T) {
	root := t.TempDir()
	writeSite(t, root, map[string]string{"index.html": `<p>x</p>`})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewVerifier(root).Verify(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
