// Package summary builds the per-run report: what every file ended up as and
// how each changeset landed.
package summary

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/saint0x/reposage/pkg/changeset"
	"github.com/saint0x/reposage/pkg/landing"
	"github.com/saint0x/reposage/pkg/types"
)

// DefaultPath is where dry runs write their report when no path is configured
const DefaultPath = "reposage-changes.json"

// Meta describes the run
type Meta struct {
	RunID      string
	Repo       types.Repo
	Base       string
	Model      string
	Mode       landing.Mode
	Workers    int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Counts tallies proposals and landing results
type Counts struct {
	Succeeded     int `json:"succeeded"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
	Changesets    int `json:"changesets"`
	Landed        int `json:"landed"`
	LandingFailed int `json:"landing_failed"`
	Recorded      int `json:"recorded"`
}

// Landing is how a file's changeset was landed
type Landing struct {
	Changeset string        `json:"changeset"`
	Mode      landing.Mode  `json:"mode"`
	State     landing.State `json:"state"`
	Target    string        `json:"target,omitempty"`
	CommitSHA string        `json:"commit_sha,omitempty"`
	PRNumber  int           `json:"pr_number,omitempty"`
	PRURL     string        `json:"pr_url,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// File is the record of one analysed file
type File struct {
	Path      string        `json:"path"`
	Language  string        `json:"language"`
	Outcome   types.Outcome `json:"outcome"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Summary   string        `json:"summary,omitempty"`
	Rationale string        `json:"rationale,omitempty"`
	Diff      string        `json:"diff,omitempty"`
	Landing   *Landing      `json:"landing,omitempty"`
}

// Report is the run summary artifact
type Report struct {
	RunID      string    `json:"run_id"`
	Repo       string    `json:"repo"`
	Base       string    `json:"base"`
	Model      string    `json:"model"`
	Mode       string    `json:"mode"`
	Workers    int       `json:"workers"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Counts     Counts    `json:"counts"`
	Files      []File    `json:"files"`
	// Fatal is the error that aborted the run, if any
	Fatal string `json:"fatal,omitempty"`
}

// Build assembles the report. results[i] must be the landing result of sets[i].
func Build(meta Meta, proposals []types.ChangeProposal, sets []changeset.Changeset, results []landing.Result) *Report {
	r := &Report{
		RunID:      meta.RunID,
		Repo:       meta.Repo.String(),
		Base:       meta.Base,
		Model:      meta.Model,
		Mode:       string(meta.Mode),
		Workers:    meta.Workers,
		StartedAt:  meta.StartedAt,
		FinishedAt: meta.FinishedAt,
		Files:      make([]File, 0, len(proposals)),
	}

	landings := make(map[string]*Landing)
	for i, cs := range sets {
		if i >= len(results) {
			break
		}
		res := results[i]
		l := &Landing{
			Changeset: cs.ID,
			Mode:      res.Mode,
			State:     res.State,
			Target:    res.Target,
			CommitSHA: res.CommitSHA,
			PRNumber:  res.PRNumber,
			PRURL:     res.PRURL,
			Error:     res.Error,
		}
		for _, p := range cs.Paths() {
			landings[p] = l
		}
		switch res.State {
		case landing.StateLanded:
			r.Counts.Landed++
		case landing.StateLandingFailed:
			r.Counts.LandingFailed++
		case landing.StateRecorded:
			r.Counts.Recorded++
		}
	}
	r.Counts.Changesets = len(sets)

	for _, p := range proposals {
		switch p.Outcome {
		case types.OutcomeSucceeded:
			r.Counts.Succeeded++
		case types.OutcomeSkipped:
			r.Counts.Skipped++
		case types.OutcomeFailed:
			r.Counts.Failed++
		}

		f := File{
			Path:      p.File.Path,
			Language:  p.File.Language,
			Outcome:   p.Outcome,
			ErrorKind: p.ErrorKind,
			Summary:   p.Summary,
			Rationale: p.Rationale,
			Landing:   landings[p.File.Path],
		}
		if p.Outcome == types.OutcomeSucceeded && p.Changed() {
			if d, err := changeset.Diff(p.File.Path, p.Original, p.Proposed); err == nil {
				f.Diff = d
			}
		}
		r.Files = append(r.Files, f)
	}
	return r
}

// Write saves the report as indented JSON
func (r *Report) Write(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Load reads a report written by Write
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &r, nil
}

// WriteMarkdown renders a human readable report
func (r *Report) WriteMarkdown(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# RepoSage run %s\n\n", r.RunID)
	fmt.Fprintf(&b, "- Repository: %s@%s\n", r.Repo, r.Base)
	fmt.Fprintf(&b, "- Model: %s\n", r.Model)
	fmt.Fprintf(&b, "- Mode: %s\n", r.Mode)
	fmt.Fprintf(&b, "- Duration: %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	if r.Fatal != "" {
		fmt.Fprintf(&b, "- **Aborted**: %s\n", r.Fatal)
	}
	c := r.Counts
	fmt.Fprintf(&b, "\n| succeeded | skipped | failed | landed | landing failed | recorded |\n")
	fmt.Fprintf(&b, "|---|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %d |\n\n", c.Succeeded, c.Skipped, c.Failed, c.Landed, c.LandingFailed, c.Recorded)

	b.WriteString("## Files\n\n")
	for _, f := range r.Files {
		line := fmt.Sprintf("- `%s`: %s", f.Path, f.Outcome)
		if f.ErrorKind != "" {
			line += " (" + f.ErrorKind + ")"
		}
		if f.Landing != nil {
			line += ", " + string(f.Landing.State)
			if f.Landing.PRURL != "" {
				line += " " + f.Landing.PRURL
			} else if f.Landing.CommitSHA != "" {
				line += " " + f.Landing.CommitSHA
			}
		}
		b.WriteString(line + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// PrintDiffs writes every file's diff followed by its rationale
func (r *Report) PrintDiffs(w io.Writer) error {
	var b strings.Builder
	for _, f := range r.Files {
		fmt.Fprintf(&b, "=== %s (%s) ===\n", f.Path, f.Outcome)
		if f.Diff == "" {
			fmt.Fprintf(&b, "No changes for %s\n\n", f.Path)
			continue
		}
		b.WriteString(f.Diff)
		if !strings.HasSuffix(f.Diff, "\n") {
			b.WriteString("\n")
		}
		if f.Rationale != "" {
			b.WriteString("\n" + f.Rationale + "\n")
		}
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
