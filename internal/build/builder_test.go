package build

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/gongjeon/internal/config"
	ferrors "git.home.luguber.info/inful/gongjeon/internal/foundation/errors"
	"git.home.luguber.info/inful/gongjeon/internal/testutil"
)

func newTestConfig(t *testing.T, files map[string]string) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.ContentDir = filepath.Join(base, "content")
	cfg.OutputDir = filepath.Join(base, "public")
	require.NoError(t, os.MkdirAll(cfg.ContentDir, 0o755))
	testutil.WriteTree(t, cfg.ContentDir, files)
	return cfg
}

func newTestBuilder(t *testing.T, cfg *config.Config, opts ...Option) *Builder {
	t.Helper()
	b, err := NewBuilder(cfg, opts...)
	require.NoError(t, err)
	return b
}

func readOutput(t *testing.T, cfg *config.Config, rel string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(cfg.OutputDir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(b)
}

// snapshot maps every file below root to its content.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	require.NoError(t, filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		out[filepath.ToSlash(rel)] = string(b)
		return nil
	}))
	return out
}

func assertNoStagingLeft(t *testing.T, cfg *config.Config) {
	t.Helper()
	entries, err := os.ReadDir(filepath.Dir(cfg.OutputDir))
	require.NoError(t, err)
	base := filepath.Base(cfg.OutputDir)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), base+stagingInfix), "leftover staging dir %s", e.Name())
		assert.NotEqual(t, base+".prev", e.Name(), "leftover backup dir")
	}
}

var scenarioFiles = map[string]string{
	"a.md":   "---\ntitle: \"Hello\"\ndate: \"2024-01-01\"\n---\n# Hi\n",
	"b/c.md": "---\ntitle: \"World\"\ndate: \"2024-02-01\"\n---\n*world*\n",
}

func TestBuild_ConcreteScenario(t *testing.T) {
	cfg := newTestConfig(t, scenarioFiles)

	report, err := newTestBuilder(t, cfg).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Equal(t, 2, report.Discovered)
	assert.Equal(t, 2, report.Rendered)
	assert.Equal(t, 2, report.Posts)

	assert.Contains(t, readOutput(t, cfg, "a.html"), "<h1>Hi</h1>")
	assert.Contains(t, readOutput(t, cfg, "b/c.html"), "<em>world</em>")

	index := readOutput(t, cfg, "index.html")
	world := strings.Index(index, "World")
	hello := strings.Index(index, "Hello")
	require.NotEqual(t, -1, world)
	require.NotEqual(t, -1, hello)
	assert.Less(t, world, hello, "newer post is listed first")
	assert.Contains(t, index, `href="b/c.html"`)
	assert.Contains(t, index, `href="a.html"`)

	assert.Equal(t, map[string]bool{"a.html": true, "b/c.html": true, "index.html": true}, keys(snapshot(t, cfg.OutputDir)))
	assertNoStagingLeft(t, cfg)
}

func keys(m map[string]string) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

func TestBuild_MissingDateIsIsolated(t *testing.T) {
	files := map[string]string{
		"good.md":   "---\ntitle: Good\ndate: 2024-01-01\n---\nok\n",
		"nodate.md": "---\ntitle: No Date\ndescription: d\n---\nbody\n",
	}
	cfg := newTestConfig(t, files)

	report, err := newTestBuilder(t, cfg).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeWarning, report.Outcome)

	require.Len(t, report.DocumentErrors, 1)
	de := report.DocumentErrors[0]
	assert.Equal(t, KindMetadataParse, de.Kind)
	assert.Equal(t, "nodate.md", filepath.Base(de.Path))
	assert.ErrorIs(t, de, ErrMetadataParse)

	index := readOutput(t, cfg, "index.html")
	assert.Contains(t, index, "Good")
	assert.NotContains(t, index, "No Date")
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, "nodate.html"))
}

func TestBuild_IsIdempotent(t *testing.T) {
	cfg := newTestConfig(t, scenarioFiles)
	b := newTestBuilder(t, cfg)

	first, err := b.Build(context.Background())
	require.NoError(t, err)
	snap1 := snapshot(t, cfg.OutputDir)

	second, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap1, snapshot(t, cfg.OutputDir))
	assert.Equal(t, first.ContentHash, second.ContentHash)
	assert.NotEqual(t, first.BuildID, second.BuildID)
}

func TestBuild_ReplacesStaleOutput(t *testing.T) {
	cfg := newTestConfig(t, scenarioFiles)
	testutil.WriteTree(t, cfg.OutputDir, map[string]string{"stale.html": "old", "old/dir.html": "old"})

	_, err := newTestBuilder(t, cfg).Build(context.Background())
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, "stale.html"))
	assert.NoDirExists(t, filepath.Join(cfg.OutputDir, "old"))
}

func TestBuild_EmptyContent(t *testing.T) {
	cfg := newTestConfig(t, nil)

	report, err := newTestBuilder(t, cfg).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Equal(t, 0, report.Posts)
	assert.Contains(t, readOutput(t, cfg, "index.html"), "No posts yet.")
}

func TestBuild_CanceledBuildKeepsPreviousOutput(t *testing.T) {
	cfg := newTestConfig(t, scenarioFiles)
	b := newTestBuilder(t, cfg)
	_, err := b.Build(context.Background())
	require.NoError(t, err)
	before := snapshot(t, cfg.OutputDir)

	testutil.WriteTree(t, cfg.ContentDir, map[string]string{"a.md": "---\ntitle: Changed\ndate: 2024-01-01\n---\n# Changed\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := b.Build(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeCanceled, report.Outcome)
	assert.Equal(t, ferrors.CategoryCanceled, ferrors.GetCategory(err))

	assert.Equal(t, before, snapshot(t, cfg.OutputDir))
	assertNoStagingLeft(t, cfg)
}

func TestBuild_MissingContentRootIsFatal(t *testing.T) {
	cfg := newTestConfig(t, nil)
	require.NoError(t, os.Remove(cfg.ContentDir))
	testutil.WriteTree(t, cfg.OutputDir, map[string]string{"keep.html": "keep"})

	report, err := newTestBuilder(t, cfg).Build(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDiscovery)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Equal(t, StageErrorFatal, report.StageErrorKinds[StageDiscover])

	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	assert.True(t, ce.IsFatal())
	assert.Equal(t, ferrors.CategoryConfig, ce.Category())

	assert.Equal(t, "keep", readOutput(t, cfg, "keep.html"))
	assertNoStagingLeft(t, cfg)
}

func TestBuild_ConsecutiveWriteFailuresAbort(t *testing.T) {
	files := map[string]string{}
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		files[n+".md"] = "---\ntitle: " + n + "\ndate: 2024-01-01\n---\nx\n"
	}
	cfg := newTestConfig(t, files)
	cfg.Build.MaxConsecutiveWriteFailures = 2

	b := newTestBuilder(t, cfg, WithWorkers(1))
	b.writeFile = func(string, []byte, os.FileMode) error { return errors.New("disk full") }

	report, err := b.Build(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBuildAborted)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryBuild))
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Len(t, report.DocumentErrors, 2)
	for _, de := range report.DocumentErrors {
		assert.Equal(t, KindWrite, de.Kind)
		assert.ErrorIs(t, de, ErrWrite)
	}
	assert.NoDirExists(t, cfg.OutputDir)
	assertNoStagingLeft(t, cfg)
}

func TestBuild_IndexWriteFailureIsFilesystemError(t *testing.T) {
	cfg := newTestConfig(t, scenarioFiles)
	b := newTestBuilder(t, cfg)
	b.writeFile = func(name string, data []byte, perm os.FileMode) error {
		if filepath.Base(name) == IndexFile {
			return errors.New("read-only file system")
		}
		return os.WriteFile(name, data, perm)
	}

	_, err := b.Build(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrite)
	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, ferrors.CategoryFileSystem, ce.Category())
	assert.True(t, ce.IsFatal())
	assertNoStagingLeft(t, cfg)
}

func TestBuild_IsolatedWriteFailureDoesNotAbort(t *testing.T) {
	cfg := newTestConfig(t, scenarioFiles)
	b := newTestBuilder(t, cfg)
	b.writeFile = func(name string, data []byte, perm os.FileMode) error {
		if filepath.Base(name) == "a.html" {
			return errors.New("permission denied")
		}
		return os.WriteFile(name, data, perm)
	}

	report, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeWarning, report.Outcome)
	require.Len(t, report.DocumentErrors, 1)
	assert.Equal(t, KindWrite, report.DocumentErrors[0].Kind)
	assert.NotContains(t, readOutput(t, cfg, "index.html"), "Hello")
}

func TestBuild_TransientWriteFailureIsRetried(t *testing.T) {
	cfg := newTestConfig(t, scenarioFiles)
	cfg.Build.WriteRetries = 2
	cfg.Build.WriteRetryDelay = time.Millisecond

	var mu sync.Mutex
	failures := map[string]int{}
	b := newTestBuilder(t, cfg)
	b.writeFile = func(name string, data []byte, perm os.FileMode) error {
		mu.Lock()
		defer mu.Unlock()
		if filepath.Base(name) != IndexFile && failures[name] < 2 {
			failures[name]++
			return errors.New("resource temporarily unavailable")
		}
		return os.WriteFile(name, data, perm)
	}

	report, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Empty(t, report.DocumentErrors)
	assert.Contains(t, readOutput(t, cfg, "a.html"), "<h1>Hi</h1>")
}

func TestBuild_FrontMatterPolicy(t *testing.T) {
	files := map[string]string{"my-first_post.md": "# Plain document\n"}

	cfg := newTestConfig(t, files)
	report, err := newTestBuilder(t, cfg).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Contains(t, readOutput(t, cfg, "index.html"), "My First Post")

	cfg = newTestConfig(t, files)
	cfg.FrontMatter = config.FrontMatterRequired
	report, err = newTestBuilder(t, cfg).Build(context.Background())
	require.NoError(t, err)
	require.Len(t, report.DocumentErrors, 1)
	assert.Equal(t, KindMetadataParse, report.DocumentErrors[0].Kind)
	assert.Equal(t, 0, report.Posts)
}

func TestBuild_RootIndexSourceCollides(t *testing.T) {
	cfg := newTestConfig(t, map[string]string{
		"index.md":     "---\ntitle: Mine\ndate: 2024-01-01\n---\nmine\n",
		"sub/index.md": "---\ntitle: Nested\ndate: 2024-01-01\n---\nnested\n",
	})

	report, err := newTestBuilder(t, cfg).Build(context.Background())
	require.NoError(t, err)
	require.Len(t, report.DocumentErrors, 1)
	assert.Equal(t, KindPathMapping, report.DocumentErrors[0].Kind)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "sub", "index.html"))
	assert.Contains(t, readOutput(t, cfg, "index.html"), "Nested")
}

func TestBuild_CaseVariantSourcesDoNotShareAPage(t *testing.T) {
	cfg := newTestConfig(t, map[string]string{
		"a.md": testutil.Post("Lower", "2024-01-01", "lower\n"),
		"a.MD": testutil.Post("Upper", "2024-01-02", "upper\n"),
		"b.md": testutil.Post("Other", "2024-01-03", "other\n"),
	})
	entries, err := os.ReadDir(cfg.ContentDir)
	require.NoError(t, err)
	if len(entries) < 3 {
		t.Skip("case-insensitive filesystem")
	}

	report, err := newTestBuilder(t, cfg).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeWarning, report.Outcome)
	assert.Equal(t, 2, report.Posts)
	require.Len(t, report.DocumentErrors, 1)
	de := report.DocumentErrors[0]
	assert.Equal(t, KindPathMapping, de.Kind)
	assert.Equal(t, "a.md", filepath.Base(de.Path))
	assert.ErrorIs(t, de, ErrPathMapping)

	assert.Contains(t, readOutput(t, cfg, "a.html"), "upper")
	index := readOutput(t, cfg, "index.html")
	assert.Equal(t, 1, strings.Count(index, `href="a.html"`))
	assert.Contains(t, index, "Upper")
	assert.NotContains(t, index, "Lower")
}

func TestBuild_InvalidUTF8IsReadError(t *testing.T) {
	files := map[string]string{"bad.md": testutil.Post("Bad", "2024-03-01", "\xff\xfe broken\n")}
	for k, v := range scenarioFiles {
		files[k] = v
	}
	cfg := newTestConfig(t, files)

	report, err := newTestBuilder(t, cfg).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeWarning, report.Outcome)
	require.Len(t, report.DocumentErrors, 1)
	assert.Equal(t, KindRead, report.DocumentErrors[0].Kind)
	assert.ErrorIs(t, report.DocumentErrors[0], ErrRead)
	assert.ErrorIs(t, report.DocumentErrors[0], ErrInvalidEncoding)

	testutil.NewSiteAssertions(t, cfg.OutputDir).
		HasPage("a.html").
		HasPage("b/c.html").
		NoPage("bad.html").
		PageContains("index.html", "Hello").
		PageContains("index.html", "World")
	assert.Equal(t, 2, report.Posts)
}

func TestBuild_RewritesMarkdownLinks(t *testing.T) {
	cfg := newTestConfig(t, map[string]string{
		"a.md":   "---\ntitle: A\ndate: 2024-01-01\n---\nSee [C](b/c.md).\n",
		"b/c.md": "---\ntitle: C\ndate: 2024-01-02\n---\nBack to [A](../a.md).\n",
	})
	cfg.Build.VerifyLinks = true

	report, err := newTestBuilder(t, cfg).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Empty(t, report.BrokenLinks)
	assert.Contains(t, readOutput(t, cfg, "a.html"), `href="b/c.html"`)
	assert.Contains(t, readOutput(t, cfg, "b/c.html"), `href="../a.html"`)
}

func TestBuild_VerifyLinksReportsBrokenLinks(t *testing.T) {
	cfg := newTestConfig(t, map[string]string{
		"a.md": "---\ntitle: A\ndate: 2024-01-01\n---\nSee [missing](nope.md).\n",
	})
	cfg.Build.VerifyLinks = true

	report, err := newTestBuilder(t, cfg).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeWarning, report.Outcome)
	require.Len(t, report.BrokenLinks, 1)
	assert.Equal(t, "nope.html", report.BrokenLinks[0].Target)
	assert.Equal(t, StageErrorWarning, report.StageErrorKinds[StageVerifyLinks])
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "a.html"), "warnings do not block the swap")
}

func TestNewBuilder_TemplateConfigErrorIsFatal(t *testing.T) {
	cfg := newTestConfig(t, scenarioFiles)
	cfg.TemplatesDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.TemplatesDir, "post.html.tmpl"), []byte(`{{define "content"}}{{if}}`), 0o644))

	_, err := NewBuilder(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTemplateConfig)
	assert.Equal(t, ferrors.CategoryTemplate, ferrors.GetCategory(err))
}

func TestReport_Persist(t *testing.T) {
	cfg := newTestConfig(t, map[string]string{"bad.md": "---\ntitle: [\n---\n"})
	report, err := newTestBuilder(t, cfg).Build(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "reports", "build-report.json")
	require.NoError(t, report.Persist(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"outcome": "warning"`)
	assert.Contains(t, string(b), `"kind": "metadata_parse"`)
	assert.Contains(t, string(b), `"build_id": "`+report.BuildID+`"`)
	assert.Contains(t, report.Summary(), "failed_docs=1")
}

func TestCleanStaleStaging(t *testing.T) {
	cfg := newTestConfig(t, nil)
	stale := cfg.OutputDir + stagingInfix + "dead"
	require.NoError(t, os.MkdirAll(stale, 0o755))
	require.NoError(t, os.MkdirAll(cfg.OutputDir+".prev", 0o755))

	removed, err := CleanStaleStaging(cfg.OutputDir)
	require.NoError(t, err)
	assert.Len(t, removed, 2)
	assertNoStagingLeft(t, cfg)
}
