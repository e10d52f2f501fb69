package types

// Outcome tags the result of analysing one file
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// ChangeProposal is what one analysis task produces for one file. It is
// immutable once returned by the worker.
type ChangeProposal struct {
	File      CandidateFile `json:"file"`
	Original  string        `json:"original"`
	Proposed  string        `json:"proposed"`
	Summary   string        `json:"summary,omitempty"`
	Rationale string        `json:"rationale"`
	Model     string        `json:"model"`
	Outcome   Outcome       `json:"outcome"`

	// ErrorKind is set for skipped and failed proposals
	ErrorKind string `json:"error_kind,omitempty"`

	// BlobSHA is the host's version id of Original
	BlobSHA string `json:"blob_sha,omitempty"`

	// EditsApplied counts suggested edits that matched the original
	EditsApplied int `json:"edits_applied,omitempty"`

	// Fatal marks a failure that must stop the run, such as rejected model
	// credentials
	Fatal bool `json:"fatal,omitempty"`
}

// Changed reports whether the proposal actually rewrites the file
func (p ChangeProposal) Changed() bool {
	return p.Proposed != p.Original
}
