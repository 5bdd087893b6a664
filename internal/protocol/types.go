// ABOUTME: Shared model types for the agent wire protocol and session state.
// ABOUTME: Suggestions, execution plan steps, roles, and notebook context.

package protocol

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// SuggestionKind identifies the mutation a suggestion proposes.
type SuggestionKind string

const (
	KindNewCell     SuggestionKind = "new_cell"
	KindModifyCell  SuggestionKind = "modify_cell"
	KindDeleteCell  SuggestionKind = "delete_cell"
	KindExecuteCell SuggestionKind = "execute_cell"
)

// Placement positions a new cell relative to a reference cell.
type Placement string

const (
	PlaceBefore  Placement = "before"
	PlaceAfter   Placement = "after"
	PlaceReplace Placement = "replace"
)

// StepStatus is the lifecycle state of an execution plan step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepExecuting StepStatus = "executing"
	StepComplete  StepStatus = "complete"
	StepError     StepStatus = "error"
	StepCancelled StepStatus = "cancelled"
)

// Terminal reports whether a step in this status has finished and will not
// change state again.
func (s StepStatus) Terminal() bool {
	return s == StepComplete || s == StepError || s == StepCancelled
}

// Suggestion is an agent-proposed mutation to the notebook.
type Suggestion struct {
	ID          string         `json:"id,omitempty"`
	Kind        SuggestionKind `json:"type"`
	Code        string         `json:"code,omitempty"`
	TargetID    string         `json:"cell_id,omitempty"`
	Placement   Placement      `json:"position,omitempty"`
	Description string         `json:"description,omitempty"`
	AutoExecute bool           `json:"auto_execute,omitempty"`
}

// Step is one unit of an agent-declared execution plan.
type Step struct {
	StepID      string      `json:"step_id"`
	Description string      `json:"description"`
	Suggestion  *Suggestion `json:"suggestion,omitempty"`
	Status      StepStatus  `json:"status"`
	Progress    float64     `json:"progress,omitempty"`
	Result      any         `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// StepResult is the outcome payload of an execution_result envelope.
type StepResult struct {
	Status string `json:"status"`
	CellID string `json:"cell_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Success reports whether the result indicates a completed step.
func (r StepResult) Success() bool {
	return r.Status == "success"
}

// NotebookContext is the document snapshot supplied with each chat request.
type NotebookContext struct {
	ActiveCellID     string            `json:"active_cell_id,omitempty"`
	CellCodes        map[string]string `json:"cell_codes,omitempty"`
	Variables        map[string]any    `json:"variables,omitempty"`
	RecentErrors     []map[string]any  `json:"recent_errors,omitempty"`
	ExecutionHistory []string          `json:"execution_history,omitempty"`
}
