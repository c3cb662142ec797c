// Package bundle parses "dogs bundle" text: a permissive, fence-delimited
// micro-format describing a batch of intended artifact changes. It is not
// JSON and not strict Markdown; delimiter search is positional, so fence-like
// substrings inside content parse correctly.
package bundle

// Op is the kind of mutation a change block requests.
type Op string

const (
	OpCreate  Op = "CREATE"
	OpModify  Op = "MODIFY"
	OpDelete  Op = "DELETE"
	OpUnknown Op = "UNKNOWN"
)

// Change is one parsed change block. Unknown operations are retained (they
// count as "changes found") but are never applied; RawOp keeps the original
// token for logging.
type Change struct {
	Op         Op     `json:"op"`
	RawOp      string `json:"raw_op"`
	Path       string `json:"path"`
	NewContent []byte `json:"new_content,omitempty"`
}

// ChangeSet is the ordered parse result of one bundle, with provenance.
type ChangeSet struct {
	Changes    []Change `json:"changes"`
	SourcePath string   `json:"source_path"`
}

// Empty reports whether the bundle produced no change records at all, which
// makes it invalid input for the applier.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Changes) == 0
}
