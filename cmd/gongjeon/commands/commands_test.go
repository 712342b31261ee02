package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/gongjeon/internal/config"
	ferrors "git.home.luguber.info/inful/gongjeon/internal/foundation/errors"
	"git.home.luguber.info/inful/gongjeon/internal/testutil"
)

type testEnv struct {
	dir    string
	root   *CLI
	global *Global
	out    *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	out := &bytes.Buffer{}
	return &testEnv{
		dir:    dir,
		root:   &CLI{Config: filepath.Join(dir, "config.json")},
		global: &Global{Context: context.Background(), Logger: slog.Default(), Out: out},
		out:    out,
	}
}

func (e *testEnv) init(t *testing.T) {
	t.Helper()
	cmd := &InitCmd{
		Content:     filepath.Join(e.dir, "content"),
		Output:      filepath.Join(e.dir, "public"),
		Title:       "Test Blog",
		Intro:       "Hello readers",
		FrontMatter: config.FrontMatterOptional,
		Scaffold:    true,
	}
	require.NoError(t, cmd.Run(e.global, e.root))
}

func (e *testEnv) write(t *testing.T, rel, body string) {
	t.Helper()
	testutil.WriteTree(t, filepath.Join(e.dir, "content"), map[string]string{rel: body})
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for env, want := range cases {
		t.Setenv("GONGJEON_LOG_LEVEL", env)
		assert.Equal(t, want, parseLogLevel(false), env)
	}
	t.Setenv("GONGJEON_LOG_LEVEL", "error")
	assert.Equal(t, slog.LevelDebug, parseLogLevel(true), "--verbose wins")
}

func TestInit_WritesConfigAndScaffold(t *testing.T) {
	env := newTestEnv(t)
	env.init(t)

	assert.DirExists(t, filepath.Join(env.dir, "content"))
	cfg, err := config.Load(env.root.Config)
	require.NoError(t, err)
	assert.Equal(t, "Test Blog", cfg.SiteTitle)
	assert.Equal(t, "Hello readers", cfg.Intro)
	assert.Contains(t, env.out.String(), "Initialized successfully")

	err = (&InitCmd{Content: "content", Output: "public", FrontMatter: "optional"}).Run(env.global, env.root)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfigExists)
}

func TestBuild_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.init(t)
	env.write(t, "a.md", testutil.Post("Hello", "2024-01-01", "# Hi\n"))
	env.write(t, "b/c.md", testutil.Post("World", "2024-02-01", "*world*\n"))

	reportPath := filepath.Join(env.dir, "report.json")
	err := (&BuildCmd{Report: reportPath}).Run(env.global, env.root)
	require.NoError(t, err)

	testutil.NewSiteAssertions(t, filepath.Join(env.dir, "public")).
		HasPage("b/c.html").
		PageContains("a.html", "<h1>Hi</h1>").
		PageContains("index.html", "Test Blog")
	assert.Contains(t, env.out.String(), "outcome=success")

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "success", report["outcome"])
	assert.EqualValues(t, 2, report["posts"])
}

func TestBuild_StrictFailsOnDocumentErrors(t *testing.T) {
	env := newTestEnv(t)
	env.init(t)
	env.write(t, "good.md", "---\ntitle: Good\ndate: 2024-01-01\n---\nok\n")
	env.write(t, "nodate.md", "---\ntitle: No Date\n---\nbody\n")

	require.NoError(t, (&BuildCmd{}).Run(env.global, env.root), "document errors are warnings by default")
	assert.Contains(t, env.out.String(), "outcome=warning")
	assert.Contains(t, env.out.String(), "nodate.md")

	err := (&BuildCmd{Strict: true}).Run(env.global, env.root)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryContent, ferrors.GetCategory(err))
}

func TestBuild_MissingConfig(t *testing.T) {
	env := newTestEnv(t)
	err := (&BuildCmd{}).Run(env.global, env.root)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfigNotFound)
	assert.Equal(t, ferrors.CategoryNotFound, ferrors.GetCategory(err))
}

func TestBuild_OverlappingOverrideIsRejected(t *testing.T) {
	env := newTestEnv(t)
	env.init(t)
	cmd := &BuildCmd{PathOverrides: PathOverrides{Output: filepath.Join(env.dir, "content", "public")}}
	err := cmd.Run(env.global, env.root)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryValidation, ferrors.GetCategory(err))
}

func TestDiscover_ListsSourcesAndURLs(t *testing.T) {
	env := newTestEnv(t)
	env.init(t)
	env.write(t, "a.md", "# A\n")
	env.write(t, "notes/b.MD", "# B\n")
	env.write(t, "image.png", "png")

	require.NoError(t, (&DiscoverCmd{}).Run(env.global, env.root))
	out := env.out.String()
	assert.Contains(t, out, "a.md\ta.html")
	assert.Contains(t, out, "notes/b.MD\tnotes/b.html")
	assert.NotContains(t, out, "image.png")
	assert.Contains(t, out, "2 document(s) found")
}

func TestParseInterval(t *testing.T) {
	d, err := parseInterval("10m")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, d)

	d, err = parseInterval("0")
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = parseInterval("soon")
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryValidation, ferrors.GetCategory(err))
}

func TestCLI_ParsesFlags(t *testing.T) {
	cli := &CLI{}
	parser, err := kong.New(cli, kong.Vars{"version": "test"}, kong.Exit(func(int) {}))
	require.NoError(t, err)

	kctx, err := parser.Parse([]string{"build", "--content", "posts", "-o", "dist", "--report", "r.json", "--strict"})
	require.NoError(t, err)
	assert.Equal(t, "build", kctx.Command())
	assert.Equal(t, "posts", cli.Build.Content)
	assert.Equal(t, "dist", cli.Build.Output)
	assert.True(t, cli.Build.Strict)
	assert.True(t, filepath.IsAbs(cli.Build.Report))

	kctx, err = parser.Parse([]string{"init", "--no-scaffold", "--title", "Mine"})
	require.NoError(t, err)
	assert.Equal(t, "init", kctx.Command())
	assert.False(t, cli.Init.Scaffold)
	assert.Equal(t, "Mine", cli.Init.Title)
	assert.Equal(t, "optional", cli.Init.FrontMatter)
}
