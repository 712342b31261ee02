package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/gongjeon/internal/docs"
	"git.home.luguber.info/inful/gongjeon/internal/frontmatter"
	"git.home.luguber.info/inful/gongjeon/internal/logfields"
	"git.home.luguber.info/inful/gongjeon/internal/observability"
	"git.home.luguber.info/inful/gongjeon/internal/paths"
	"git.home.luguber.info/inful/gongjeon/internal/templates"
)

// stageConvert converts every discovered document with a bounded worker pool.
// Per-document failures are recorded and never stop the stage; a run of
// consecutive write failures aborts the build.
func stageConvert(ctx context.Context, bs *buildState) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bs.workers)

	var (
		mu          sync.Mutex
		consecutive int
	)
	limit := bs.cfg.Build.MaxConsecutiveWriteFailures

	pending, rejected := bs.claimOutputs()
	for _, derr := range rejected {
		bs.recordDocumentError(observability.WithDocument(ctx, derr.Path), derr)
	}

	for _, doc := range pending {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dctx := observability.WithDocument(gctx, doc.RelativePath)
			post, derr := bs.convertDocument(dctx, doc)

			mu.Lock()
			defer mu.Unlock()
			if derr == nil {
				consecutive = 0
				bs.posts = append(bs.posts, post)
				return nil
			}

			bs.recordDocumentError(dctx, derr)
			if derr.Kind == KindWrite {
				consecutive++
				if limit > 0 && consecutive >= limit {
					return fmt.Errorf("%w: %d consecutive write failures, last: %w", ErrBuildAborted, consecutive, derr)
				}
			}
			return nil
		})
	}
	err := g.Wait()

	bs.report.Rendered = len(bs.posts)
	bs.recorder.IncDocumentsRendered(len(bs.posts))

	switch {
	case err != nil && errors.Is(err, ErrBuildAborted):
		return newFatalStageError(StageConvert, err)
	case ctx.Err() != nil:
		return newCanceledStageError(StageConvert, ctx.Err())
	case err != nil:
		return newFatalStageError(StageConvert, err)
	}
	return nil
}

// claimOutputs assigns every output page to the first source in discovery
// order that maps to it. Later sources with the same page (a.md and a.MD) are
// rejected as path mapping errors so no page is written twice.
func (bs *buildState) claimOutputs() ([]docs.DocFile, []*DocumentError) {
	owners := make(map[string]string, len(bs.docs))
	pending := make([]docs.DocFile, 0, len(bs.docs))
	var rejected []*DocumentError
	for _, doc := range bs.docs {
		url, err := bs.outputURL(doc)
		if err != nil {
			// convertDocument reports the mapping failure.
			pending = append(pending, doc)
			continue
		}
		if owner, taken := owners[url]; taken {
			rejected = append(rejected, newDocumentError(KindPathMapping, doc.Path,
				fmt.Errorf("%s would overwrite %s produced by %s", doc.RelativePath, url, owner)))
			continue
		}
		owners[url] = doc.RelativePath
		pending = append(pending, doc)
	}
	return pending, rejected
}

func (bs *buildState) outputURL(doc docs.DocFile) (string, error) {
	staged, err := paths.MapOutput(doc.Path, bs.contentRoot, bs.stageDir)
	if err != nil {
		return "", err
	}
	return paths.URL(staged, bs.stageDir)
}

// recordDocumentError adds a per-document failure to the report. Callers
// running concurrently must hold the convert mutex.
func (bs *buildState) recordDocumentError(ctx context.Context, derr *DocumentError) {
	bs.report.DocumentErrors = append(bs.report.DocumentErrors, derr)
	bs.recorder.IncDocumentFailure(string(derr.Kind))
	observability.WarnContext(ctx, "Document skipped",
		logfields.Kind(string(derr.Kind)),
		logfields.Error(derr.Err))
}

// convertDocument runs read, extract, render, map and write for one source.
func (bs *buildState) convertDocument(ctx context.Context, doc docs.DocFile) (RenderedPost, *DocumentError) {
	content, err := os.ReadFile(doc.Path)
	if err != nil {
		return RenderedPost{}, newDocumentError(KindRead, doc.Path, err)
	}
	if !utf8.Valid(content) {
		return RenderedPost{}, newDocumentError(KindRead, doc.Path, ErrInvalidEncoding)
	}

	fm, err := frontmatter.Extract(content, bs.policy)
	if err != nil {
		return RenderedPost{}, newDocumentError(KindMetadataParse, doc.Path, err)
	}

	fragment, err := bs.renderer.Render(fm.Body)
	if err != nil {
		return RenderedPost{}, newDocumentError(KindRender, doc.Path, err)
	}

	staged, err := paths.MapOutput(doc.Path, bs.contentRoot, bs.stageDir)
	if err != nil {
		return RenderedPost{}, newDocumentError(KindPathMapping, doc.Path, err)
	}
	url, err := paths.URL(staged, bs.stageDir)
	if err != nil {
		return RenderedPost{}, newDocumentError(KindPathMapping, doc.Path, err)
	}
	if isIndexCollision(url) {
		return RenderedPost{}, newDocumentError(KindPathMapping, doc.Path,
			fmt.Errorf("%s would overwrite the generated %s", doc.RelativePath, IndexFile))
	}

	page, err := bs.templater.RenderPost(templates.PostPage{Content: fragment, Meta: fm.Metadata, URL: url})
	if err != nil {
		return RenderedPost{}, newDocumentError(KindRender, doc.Path, err)
	}

	if err := paths.EnsureParent(staged); err != nil {
		return RenderedPost{}, newDocumentError(KindWrite, doc.Path, err)
	}
	write := func() error { return bs.writeFile(staged, page, 0o644) } //nolint:gosec // public HTML output
	if err := bs.writeRetry.Do(ctx, nil, write); err != nil {
		return RenderedPost{}, newDocumentError(KindWrite, doc.Path, err)
	}

	observability.DebugContext(ctx, "Rendered page", logfields.Output(url))
	return RenderedPost{
		SourcePath:  doc.Path,
		OutputPath:  filepath.Join(bs.cfg.OutputDir, filepath.FromSlash(url)),
		URL:         url,
		Metadata:    fm.Metadata,
		Fingerprint: fm.Fingerprint,
	}, nil
}
