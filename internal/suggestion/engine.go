// ABOUTME: Suggestion application engine — validates each agent suggestion,
// ABOUTME: applies its mutation to the notebook, and optionally executes.

package suggestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quill-labs/quill-agent/internal/notebook"
	"github.com/quill-labs/quill-agent/internal/protocol"
	"github.com/quill-labs/quill-agent/internal/safety"
)

// Validation failures, one per reason so callers can branch on them.
var (
	ErrMissingCode   = errors.New("suggestion has no code")
	ErrMissingTarget = errors.New("suggestion has no target cell")
	ErrUnknownKind   = errors.New("unknown suggestion kind")
	ErrUnsafeCode    = errors.New("suggestion code failed safety check")
)

// Outcome reports what applying one suggestion did.
type Outcome struct {
	// CellID is the cell created, modified, deleted, or executed.
	CellID string
	// Ran reports whether the cell was executed after the mutation.
	Ran bool
	// Warnings are advisory safety findings, present even on success.
	Warnings []string
}

// Engine applies agent suggestions to a notebook. Construction wires the
// document and the safety checker; the agent config arrives per call because
// it can change mid-session.
type Engine struct {
	nb      notebook.Notebook
	checker *safety.Checker
	logger  *slog.Logger
}

// NewEngine creates an engine over the given notebook. logger may be nil.
func NewEngine(nb notebook.Notebook, checker *safety.Checker, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		nb:      nb,
		checker: checker,
		logger:  logger.With("component", "suggestion"),
	}
}

// Validate checks a suggestion's shape without touching the notebook. Each
// kind has its own required fields; an unrecognized kind is rejected so a
// newer server cannot trigger an unintended mutation.
func Validate(s protocol.Suggestion) error {
	switch s.Kind {
	case protocol.KindNewCell:
		if s.Code == "" {
			return fmt.Errorf("new_cell: %w", ErrMissingCode)
		}
	case protocol.KindModifyCell:
		if s.TargetID == "" {
			return fmt.Errorf("modify_cell: %w", ErrMissingTarget)
		}
		if s.Code == "" {
			return fmt.Errorf("modify_cell: %w", ErrMissingCode)
		}
	case protocol.KindDeleteCell:
		if s.TargetID == "" {
			return fmt.Errorf("delete_cell: %w", ErrMissingTarget)
		}
	case protocol.KindExecuteCell:
		if s.TargetID == "" {
			return fmt.Errorf("execute_cell: %w", ErrMissingTarget)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
	return nil
}

// ShouldAutoExecute reports whether a suggestion runs without explicit
// approval: both the suggestion and the session config must opt in.
func ShouldAutoExecute(s protocol.Suggestion, cfg protocol.AgentConfig) bool {
	return s.AutoExecute && cfg.AutoExecute
}

// Apply validates the suggestion, checks its code, performs the mutation,
// and executes the affected cell when the effective auto-execute policy says
// so. execute_cell suggestions always run — execution is their mutation.
// Validation and safety failures leave the notebook untouched.
func (e *Engine) Apply(ctx context.Context, s protocol.Suggestion, cfg protocol.AgentConfig) (Outcome, error) {
	if err := Validate(s); err != nil {
		return Outcome{}, err
	}

	var out Outcome
	if s.Code != "" && e.checker != nil {
		res := e.checker.Check(s.Code)
		out.Warnings = res.Warnings
		if !res.Safe {
			e.logger.Warn("rejecting unsafe suggestion",
				"suggestion_id", s.ID, "kind", s.Kind, "warnings", res.Warnings)
			return out, fmt.Errorf("%s: %w", s.Kind, ErrUnsafeCode)
		}
	}

	switch s.Kind {
	case protocol.KindNewCell:
		id, err := e.nb.CreateCell(ctx, s.Code, s.TargetID, s.Placement)
		if err != nil {
			return out, fmt.Errorf("applying new_cell: %w", err)
		}
		out.CellID = id

	case protocol.KindModifyCell:
		if err := e.nb.UpdateCellCode(ctx, s.TargetID, s.Code); err != nil {
			return out, fmt.Errorf("applying modify_cell: %w", err)
		}
		out.CellID = s.TargetID

	case protocol.KindDeleteCell:
		if err := e.nb.DeleteCell(ctx, s.TargetID); err != nil {
			return out, fmt.Errorf("applying delete_cell: %w", err)
		}
		out.CellID = s.TargetID
		// Nothing left to execute.
		e.logger.Info("deleted cell", "cell_id", s.TargetID)
		return out, nil

	case protocol.KindExecuteCell:
		out.CellID = s.TargetID
		if err := e.nb.Run(ctx, []string{s.TargetID}); err != nil {
			return out, fmt.Errorf("applying execute_cell: %w", err)
		}
		out.Ran = true
		return out, nil
	}

	if ShouldAutoExecute(s, cfg) {
		if err := e.nb.Run(ctx, []string{out.CellID}); err != nil {
			return out, fmt.Errorf("auto-executing cell %s: %w", out.CellID, err)
		}
		out.Ran = true
	}

	e.logger.Info("applied suggestion",
		"suggestion_id", s.ID, "kind", s.Kind, "cell_id", out.CellID, "ran", out.Ran)
	return out, nil
}
