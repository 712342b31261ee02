package build

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"git.home.luguber.info/inful/gongjeon/internal/docs"
	"git.home.luguber.info/inful/gongjeon/internal/linkverify"
	"git.home.luguber.info/inful/gongjeon/internal/templates"
)

// Outcome is the typed enumeration of final build result states.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeWarning  Outcome = "warning"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
)

// StageCount aggregates outcome counts for a stage.
type StageCount struct {
	Success  int
	Warning  int
	Fatal    int
	Canceled int
}

// Report captures the result of one build.
type Report struct {
	SchemaVersion int
	BuildID       string
	Start         time.Time
	End           time.Time

	Discovered int // Markdown sources found
	Rendered   int // pages written
	Posts      int // entries in the index

	// Errors holds the fatal error that aborted the build (at most one).
	Errors []error
	// Warnings holds non-fatal stage and discovery problems.
	Warnings        []error
	DocumentErrors  []*DocumentError
	BrokenLinks     []linkverify.BrokenLink
	StageDurations  map[StageName]time.Duration
	StageErrorKinds map[StageName]StageErrorKind
	StageCounts     map[StageName]StageCount
	Templates       map[string]templates.Source

	// ContentHash identifies the rendered content set; equal inputs give equal hashes.
	ContentHash string
	Outcome     Outcome
}

func newReport(buildID string) *Report {
	return &Report{
		SchemaVersion:   1,
		BuildID:         buildID,
		Start:           time.Now(),
		StageDurations:  make(map[StageName]time.Duration),
		StageErrorKinds: make(map[StageName]StageErrorKind),
		StageCounts:     make(map[StageName]StageCount),
	}
}

func (r *Report) recordStage(stage StageName, se *StageError) {
	sc := r.StageCounts[stage]
	if se == nil {
		sc.Success++
		r.StageCounts[stage] = sc
		return
	}
	r.StageErrorKinds[stage] = se.Kind
	switch se.Kind {
	case StageErrorWarning:
		sc.Warning++
		r.Warnings = append(r.Warnings, se)
	case StageErrorCanceled:
		sc.Canceled++
		r.Errors = append(r.Errors, se)
	default:
		sc.Fatal++
		r.Errors = append(r.Errors, se)
	}
	r.StageCounts[stage] = sc
}

func (r *Report) addDiscoveryWarnings(ws []docs.Warning) {
	for _, w := range ws {
		r.Warnings = append(r.Warnings, fmt.Errorf("%w: %w", ErrDiscovery, w))
	}
}

func (r *Report) finish() {
	r.End = time.Now()
	sort.Slice(r.DocumentErrors, func(i, j int) bool {
		return r.DocumentErrors[i].Path < r.DocumentErrors[j].Path
	})
	r.deriveOutcome()
}

// deriveOutcome sets Outcome from the recorded errors and warnings.
func (r *Report) deriveOutcome() {
	if len(r.Errors) > 0 {
		for _, e := range r.Errors {
			var se *StageError
			if errors.As(e, &se) && se.Kind == StageErrorCanceled {
				r.Outcome = OutcomeCanceled
				return
			}
		}
		r.Outcome = OutcomeFailed
		return
	}
	if len(r.Warnings) > 0 || len(r.DocumentErrors) > 0 {
		r.Outcome = OutcomeWarning
		return
	}
	r.Outcome = OutcomeSuccess
}

// Duration returns the wall time of the build.
func (r *Report) Duration() time.Duration {
	if r.End.IsZero() {
		return time.Since(r.Start)
	}
	return r.End.Sub(r.Start)
}

// Summary returns a human-readable single-line summary.
func (r *Report) Summary() string {
	return fmt.Sprintf("discovered=%d rendered=%d posts=%d failed_docs=%d duration=%s errors=%d warnings=%d stages=%d outcome=%s",
		r.Discovered, r.Rendered, r.Posts, len(r.DocumentErrors), r.Duration().Truncate(time.Millisecond),
		len(r.Errors), len(r.Warnings), len(r.StageDurations), r.Outcome)
}

type reportDocumentError struct {
	Kind  DocumentErrorKind `json:"kind"`
	Path  string            `json:"path"`
	Error string            `json:"error"`
}

type serializableReport struct {
	SchemaVersion   int                          `json:"schema_version"`
	BuildID         string                       `json:"build_id"`
	Start           time.Time                    `json:"start"`
	End             time.Time                    `json:"end"`
	DurationMS      int64                        `json:"duration_ms"`
	Outcome         Outcome                      `json:"outcome"`
	Summary         string                       `json:"summary"`
	Discovered      int                          `json:"discovered"`
	Rendered        int                          `json:"rendered"`
	Posts           int                          `json:"posts"`
	ContentHash     string                       `json:"content_hash,omitempty"`
	Errors          []string                     `json:"errors,omitempty"`
	Warnings        []string                     `json:"warnings,omitempty"`
	DocumentErrors  []reportDocumentError        `json:"document_errors,omitempty"`
	BrokenLinks     []linkverify.BrokenLink      `json:"broken_links,omitempty"`
	StageDurations  map[StageName]int64          `json:"stage_durations_ms"`
	StageErrorKinds map[StageName]StageErrorKind `json:"stage_error_kinds,omitempty"`
	StageCounts     map[StageName]StageCount     `json:"stage_counts"`
	Templates       map[string]templates.Source  `json:"templates,omitempty"`
}

func (r *Report) serializable() serializableReport {
	s := serializableReport{
		SchemaVersion:   r.SchemaVersion,
		BuildID:         r.BuildID,
		Start:           r.Start,
		End:             r.End,
		DurationMS:      r.Duration().Milliseconds(),
		Outcome:         r.Outcome,
		Summary:         r.Summary(),
		Discovered:      r.Discovered,
		Rendered:        r.Rendered,
		Posts:           r.Posts,
		ContentHash:     r.ContentHash,
		BrokenLinks:     r.BrokenLinks,
		StageDurations:  make(map[StageName]int64, len(r.StageDurations)),
		StageErrorKinds: r.StageErrorKinds,
		StageCounts:     r.StageCounts,
		Templates:       r.Templates,
	}
	for k, v := range r.StageDurations {
		s.StageDurations[k] = v.Milliseconds()
	}
	for _, e := range r.Errors {
		s.Errors = append(s.Errors, e.Error())
	}
	for _, w := range r.Warnings {
		s.Warnings = append(s.Warnings, w.Error())
	}
	for _, de := range r.DocumentErrors {
		s.DocumentErrors = append(s.DocumentErrors, reportDocumentError{Kind: de.Kind, Path: de.Path, Error: de.Err.Error()})
	}
	return s
}

// MarshalJSON renders the report with errors flattened to strings.
func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.serializable())
}

// Persist writes the report as indented JSON to path via a temp file and rename.
// Reports are kept outside the output tree so repeated builds stay byte-identical.
func (r *Report) Persist(path string) error {
	jb, err := json.MarshalIndent(r.serializable(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report json: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure report dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(jb, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp report json: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("atomic rename report json: %w", err)
	}
	return nil
}
