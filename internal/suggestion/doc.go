// Package suggestion applies agent code suggestions to a notebook.
//
// # Overview
//
// The agent proposes edits as typed suggestions: new_cell, modify_cell,
// delete_cell, and execute_cell. The Engine validates each suggestion's
// shape, runs its code through the safety checker, performs the notebook
// mutation, and executes the affected cell when policy allows.
//
// # Auto-Execute Policy
//
// A suggestion runs without explicit approval only when both the suggestion
// itself and the session's agent config opt in. Either side saying no means
// the mutation is applied but the cell waits for the user. execute_cell is
// the exception: execution is the whole point of that kind, so it always
// runs once validated.
//
// # Failure Behavior
//
// Validation and safety failures are reported before any mutation, so a
// rejected suggestion never leaves the document half-changed. Failures are
// distinguishable with errors.Is: ErrMissingCode, ErrMissingTarget,
// ErrUnknownKind, and ErrUnsafeCode.
package suggestion
