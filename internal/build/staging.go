package build

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/gongjeon/internal/logfields"
)

const stagingInfix = ".staging-"

// beginStaging creates a sibling staging directory <output>.staging-<id>.
// It lives next to the output so the final rename stays on one filesystem.
func (bs *buildState) beginStaging() error {
	out := filepath.Clean(bs.cfg.OutputDir)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("%w: ensure output parent: %w", ErrStaging, err)
	}
	stage := out + stagingInfix + bs.report.BuildID
	if err := os.RemoveAll(stage); err != nil {
		return fmt.Errorf("%w: clear staging dir: %w", ErrStaging, err)
	}
	if err := os.Mkdir(stage, 0o755); err != nil {
		return fmt.Errorf("%w: create staging dir: %w", ErrStaging, err)
	}
	bs.stageDir = stage
	slog.Debug("Initialized staging directory", slog.String("staging", stage), logfields.Output(out))
	return nil
}

// finalizeStaging promotes the staging directory to the output location:
//  1. move an existing output to <output>.prev
//  2. rename staging to output
//  3. remove the backup
//
// If step 2 fails the backup is moved back.
func (bs *buildState) finalizeStaging() error {
	if bs.stageDir == "" {
		return fmt.Errorf("%w: no staging directory initialized", ErrStaging)
	}
	if _, err := os.Stat(bs.stageDir); err != nil {
		return fmt.Errorf("%w: staging directory missing: %w", ErrStaging, err)
	}

	out := filepath.Clean(bs.cfg.OutputDir)
	prev := out + ".prev"
	if err := os.RemoveAll(prev); err != nil {
		return fmt.Errorf("%w: remove stale backup: %w", ErrStaging, err)
	}

	hadOutput := false
	if _, err := os.Lstat(out); err == nil {
		if err := os.Rename(out, prev); err != nil {
			return fmt.Errorf("%w: backup existing output: %w", ErrStaging, err)
		}
		hadOutput = true
	}
	if err := os.Rename(bs.stageDir, out); err != nil {
		if hadOutput {
			if rerr := os.Rename(prev, out); rerr != nil {
				slog.Error("Failed to restore previous output", logfields.Path(prev), logfields.Error(rerr))
			}
		}
		return fmt.Errorf("%w: promote staging: %w", ErrStaging, err)
	}
	bs.stageDir = ""

	if hadOutput {
		if err := os.RemoveAll(prev); err != nil {
			slog.Warn("Failed to remove previous output", logfields.Path(prev), logfields.Error(err))
		}
	}
	slog.Debug("Promoted staging directory", logfields.Output(out))
	return nil
}

// abortStaging removes the staging directory after a failed build.
func (bs *buildState) abortStaging() {
	if bs.stageDir == "" {
		return
	}
	dir := bs.stageDir
	bs.stageDir = ""
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("Failed to remove staging directory after abort", slog.String("staging", dir), logfields.Error(err))
		return
	}
	slog.Debug("Removed staging directory after abort", slog.String("staging", dir))
}

// CleanStaleStaging removes staging directories and backups left next to
// output by an interrupted process. It returns the removed paths.
func CleanStaleStaging(output string) ([]string, error) {
	out := filepath.Clean(output)
	parent, base := filepath.Dir(out), filepath.Base(out)
	entries, err := os.ReadDir(parent)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var removed []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || (!strings.HasPrefix(name, base+stagingInfix) && name != base+".prev") {
			continue
		}
		p := filepath.Join(parent, name)
		if err := os.RemoveAll(p); err != nil {
			return removed, err
		}
		removed = append(removed, p)
	}
	return removed, nil
}
