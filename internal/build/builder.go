package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/gongjeon/internal/config"
	"git.home.luguber.info/inful/gongjeon/internal/docs"
	ferrors "git.home.luguber.info/inful/gongjeon/internal/foundation/errors"
	"git.home.luguber.info/inful/gongjeon/internal/frontmatter"
	"git.home.luguber.info/inful/gongjeon/internal/linkverify"
	"git.home.luguber.info/inful/gongjeon/internal/logfields"
	"git.home.luguber.info/inful/gongjeon/internal/markdown"
	"git.home.luguber.info/inful/gongjeon/internal/metrics"
	"git.home.luguber.info/inful/gongjeon/internal/observability"
	"git.home.luguber.info/inful/gongjeon/internal/retry"
	"git.home.luguber.info/inful/gongjeon/internal/templates"
)

// IndexFile is the name of the generated index page at the output root.
const IndexFile = "index.html"

// Builder runs site builds for one configuration. A Builder is safe for
// sequential reuse; overlapping builds into the same output must go through
// a Coordinator.
type Builder struct {
	cfg       *config.Config
	policy    frontmatter.Policy
	renderer  *markdown.Renderer
	templater *templates.Templater
	recorder  metrics.Recorder
	workers   int
	writeFile func(name string, data []byte, perm os.FileMode) error
	// writeRetry governs retries of failed page writes.
	writeRetry retry.Policy
}

// Option customizes a Builder.
type Option func(*Builder)

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(b *Builder) {
		if r != nil {
			b.recorder = r
		}
	}
}

// WithWorkers overrides the configured conversion concurrency.
func WithWorkers(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// NewBuilder validates cfg and loads the page templates. Template problems
// are fatal here, before any output is touched.
func NewBuilder(cfg *config.Config, opts ...Option) (*Builder, error) {
	if cfg == nil {
		return nil, ferrors.ConfigError("configuration is required").Build()
	}
	policy, err := frontmatter.ParsePolicy(cfg.FrontMatter)
	if err != nil {
		return nil, ferrors.ConfigError("invalid front matter policy").WithCause(err).Build()
	}
	tpl, err := templates.New(templates.Site{Title: cfg.SiteTitle, Intro: cfg.Intro}, templates.Options{Dir: cfg.TemplatesDir})
	if err != nil {
		return nil, ferrors.TemplateError("load page templates").
			WithCause(err).
			WithContext("templates_dir", cfg.TemplatesDir).
			Build()
	}

	b := &Builder{
		cfg:       cfg,
		policy:    policy,
		renderer:  markdown.NewRenderer(markdown.Options{RewriteMarkdownLinks: cfg.Build.RewriteLinks()}),
		templater: tpl,
		recorder:  metrics.NoopRecorder{},
		workers:   cfg.Build.Workers,
		writeFile: os.WriteFile,
	}
	b.writeRetry = retry.NewPolicy(
		retry.BackoffMode(cfg.Build.WriteRetryBackoff),
		cfg.Build.WriteRetryDelay,
		20*cfg.Build.WriteRetryDelay,
		cfg.Build.WriteRetries,
	)
	if b.workers <= 0 {
		b.workers = runtime.NumCPU()
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// buildState carries mutable state across the stages of one build.
type buildState struct {
	*Builder
	report      *Report
	stageDir    string
	contentRoot string
	docs        []docs.DocFile
	posts       []RenderedPost
}

// Build runs one complete build. The returned error is non-nil only for
// fatal failures and cancellation; it is then a *ClassifiedError wrapping
// the stage error and its sentinel. Per-document failures are listed in
// Report.DocumentErrors. A report is returned in every case.
func (b *Builder) Build(ctx context.Context) (*Report, error) {
	report := newReport(uuid.NewString())
	report.Templates = b.templater.Sources()
	bs := &buildState{Builder: b, report: report}
	defer bs.abortStaging()
	ctx = observability.WithBuildID(ctx, report.BuildID)

	observability.InfoContext(ctx, "Build started",
		logfields.Path(b.cfg.ContentDir),
		logfields.Output(b.cfg.OutputDir))

	err := runStages(ctx, bs, []namedStage{
		{StagePrepareOutput, stagePrepareOutput},
		{StageDiscover, stageDiscover},
		{StageConvert, stageConvert},
		{StageWriteIndex, stageWriteIndex},
		{StageVerifyLinks, stageVerifyLinks},
		{StageFinalize, stageFinalize},
	})
	if err != nil {
		bs.abortStaging()
	}
	report.finish()

	b.recorder.ObserveBuildDuration(report.Duration())
	b.recorder.IncBuildOutcome(string(report.Outcome))
	if err != nil {
		observability.ErrorContext(ctx, "Build failed",
			logfields.Outcome(string(report.Outcome)),
			logfields.Error(err))
		return report, classifyBuildError(err, report.BuildID)
	}
	b.recorder.SetLastBuildPosts(report.Posts)
	observability.InfoContext(ctx, "Build finished",
		logfields.Outcome(string(report.Outcome)),
		slog.String("summary", report.Summary()))
	return report, nil
}

func classifyBuildError(err error, buildID string) error {
	var se *StageError
	stage := ""
	if errors.As(err, &se) {
		stage = string(se.Stage)
	}

	var eb *ferrors.ErrorBuilder
	switch {
	case se != nil && se.Kind == StageErrorCanceled:
		eb = ferrors.WrapError(err, ferrors.CategoryCanceled, "build canceled")
	case errors.Is(err, ErrBuildAborted):
		eb = ferrors.BuildError("build aborted")
	case errors.Is(err, ErrTemplateConfig):
		eb = ferrors.TemplateError("template configuration failed")
	case errors.Is(err, ErrDiscovery):
		eb = ferrors.ConfigError("content discovery failed")
	case errors.Is(err, ErrStaging), errors.Is(err, ErrWrite):
		eb = ferrors.FileSystemError("output could not be written")
	default:
		eb = ferrors.BuildError("build failed")
	}
	return eb.WithCause(err).Fatal().WithContext("stage", stage).WithContext("build_id", buildID).Build()
}

func stagePrepareOutput(_ context.Context, bs *buildState) error {
	if err := bs.beginStaging(); err != nil {
		return newFatalStageError(StagePrepareOutput, err)
	}
	return nil
}

func stageDiscover(ctx context.Context, bs *buildState) error {
	d := docs.NewDiscovery(bs.cfg.ContentDir)
	files, err := d.Discover()
	if err != nil {
		return newFatalStageError(StageDiscover, fmt.Errorf("%w: %w", ErrDiscovery, err))
	}
	bs.docs = files
	bs.contentRoot = d.Root()
	bs.report.Discovered = len(files)
	bs.report.addDiscoveryWarnings(d.Warnings())
	observability.InfoContext(ctx, "Content discovered", logfields.Count(len(files)), logfields.Path(bs.contentRoot))
	return nil
}

func stageWriteIndex(_ context.Context, bs *buildState) error {
	sortPosts(bs.posts)
	entries := indexEntries(bs.posts)

	page, err := bs.templater.RenderIndex(entries)
	if err != nil {
		return newFatalStageError(StageWriteIndex, fmt.Errorf("%w: index: %w", ErrRender, err))
	}
	if err := bs.writeFile(filepath.Join(bs.stageDir, IndexFile), page, 0o644); err != nil { //nolint:gosec // public HTML output
		return newFatalStageError(StageWriteIndex, fmt.Errorf("%w: index: %w", ErrWrite, err))
	}
	bs.report.Posts = len(entries)
	bs.report.ContentHash = contentHash(bs.posts)
	return nil
}

func stageVerifyLinks(ctx context.Context, bs *buildState) error {
	if !bs.cfg.Build.VerifyLinks {
		return nil
	}
	broken, err := linkverify.NewVerifier(bs.stageDir).Verify(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return newCanceledStageError(StageVerifyLinks, ctx.Err())
		}
		return newWarnStageError(StageVerifyLinks, err)
	}
	bs.report.BrokenLinks = broken
	if len(broken) > 0 {
		for _, bl := range broken {
			observability.WarnContext(ctx, "Broken internal link", logfields.Path(bl.Page), slog.String("url", bl.URL))
		}
		return newWarnStageError(StageVerifyLinks, fmt.Errorf("%d broken internal link(s)", len(broken)))
	}
	return nil
}

func stageFinalize(_ context.Context, bs *buildState) error {
	if err := bs.finalizeStaging(); err != nil {
		return newFatalStageError(StageFinalize, err)
	}
	return nil
}

// isIndexCollision reports whether a page URL would overwrite the generated index.
func isIndexCollision(url string) bool {
	return strings.EqualFold(url, IndexFile)
}
