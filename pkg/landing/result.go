package landing

import "fmt"

// Mode selects how changesets are landed
type Mode string

const (
	ModeDryRun      Mode = "dry_run"
	ModeCommit      Mode = "commit"
	ModePullRequest Mode = "pull_request"
)

// ModeFor derives the mode from the run flags. Dry run wins.
func ModeFor(dryRun, usePR bool) Mode {
	switch {
	case dryRun:
		return ModeDryRun
	case usePR:
		return ModePullRequest
	default:
		return ModeCommit
	}
}

// State is the position of one changeset in the landing state machine
type State string

const (
	StatePending        State = "pending"
	StateBranchCreating State = "branch_creating"
	StateCommitting     State = "committing"
	StateLanded         State = "landed"
	StateLandingFailed  State = "landing_failed"
	StateRecorded       State = "recorded"
)

var transitions = map[State][]State{
	StatePending:        {StateBranchCreating, StateCommitting, StateRecorded, StateLandingFailed},
	StateBranchCreating: {StateCommitting, StateLandingFailed},
	StateCommitting:     {StateLanded, StateLandingFailed},
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Result is the outcome of landing one changeset
type Result struct {
	ChangesetID string   `json:"changeset_id"`
	Paths       []string `json:"paths"`
	Mode        Mode     `json:"mode"`
	State       State    `json:"state"`
	// Target is the branch the commits went to
	Target    string `json:"target,omitempty"`
	CommitSHA string `json:"commit_sha,omitempty"`
	PRNumber  int    `json:"pr_number,omitempty"`
	PRURL     string `json:"pr_url,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	// ChangelogError is set when the change landed but recording it failed
	ChangelogError string `json:"changelog_error,omitempty"`
}

// Ref returns what the change landed as: the PR URL or the commit SHA
func (r *Result) Ref() string {
	if r.PRURL != "" {
		return r.PRURL
	}
	return r.CommitSHA
}

func (r *Result) advance(to State) error {
	for _, allowed := range transitions[r.State] {
		if allowed == to {
			r.State = to
			return nil
		}
	}
	return fmt.Errorf("invalid landing transition %s -> %s", r.State, to)
}
