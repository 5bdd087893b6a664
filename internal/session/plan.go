// ABOUTME: Execution plan tracker — per-step state machine for the agent's
// ABOUTME: declared multi-step plan, updated as results arrive.

package session

import (
	"github.com/quill-labs/quill-agent/internal/protocol"
)

// PlanSummary aggregates plan progress for consumers.
type PlanSummary struct {
	Total     int
	Completed int
	Errors    int
	Progress  float64
}

// SetPlan replaces the whole plan atomically. Used when the agent declares a
// new plan, typically once per user turn; this is also the only way the plan
// is ever cleared.
func (s *Store) SetPlan(steps []protocol.Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan = copySteps(steps)
	s.executingStep = ""
}

// UpdateStep mutates the matching step in place, preserving its position.
// Zero values leave the corresponding field untouched. An unknown stepID is
// dropped and logged, never fatal.
func (s *Store) UpdateStep(stepID string, status protocol.StepStatus, result any, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.plan {
		if s.plan[i].StepID != stepID {
			continue
		}
		if status != "" {
			s.plan[i].Status = status
			if status != protocol.StepExecuting {
				s.plan[i].Progress = 0
			}
		}
		if result != nil {
			s.plan[i].Result = result
		}
		if errMsg != "" {
			s.plan[i].Error = errMsg
		}
		if s.executingStep == stepID && s.plan[i].Status.Terminal() {
			s.executingStep = ""
		}
		return
	}

	s.logger.Warn("dropping update for unknown plan step", "step_id", stepID)
}

// SetStepProgress records a progress fraction for a step; meaningful only
// while the step is executing, so it is ignored otherwise.
func (s *Store) SetStepProgress(stepID string, progress float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.plan {
		if s.plan[i].StepID != stepID {
			continue
		}
		if s.plan[i].Status != protocol.StepExecuting {
			s.logger.Warn("ignoring progress for non-executing step",
				"step_id", stepID, "status", s.plan[i].Status)
			return
		}
		s.plan[i].Progress = progress
		return
	}
}

// SetExecutingStep records which single step is presently active for UI
// purposes. It does not change that step's status — callers also invoke
// UpdateStep with StepExecuting. Pass the empty string to clear.
func (s *Store) SetExecutingStep(stepID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executingStep = stepID
}

// NextPendingStep returns the first step still pending, or nil when none.
func (s *Store) NextPendingStep() *protocol.Step {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.plan {
		if s.plan[i].Status == protocol.StepPending {
			step := s.plan[i]
			if step.Suggestion != nil {
				sug := *step.Suggestion
				step.Suggestion = &sug
			}
			return &step
		}
	}
	return nil
}

// PlanSummary reports aggregate plan progress.
func (s *Store) PlanSummary() PlanSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := PlanSummary{Total: len(s.plan)}
	for _, st := range s.plan {
		switch st.Status {
		case protocol.StepComplete:
			sum.Completed++
		case protocol.StepError:
			sum.Errors++
		}
	}
	if sum.Total > 0 {
		sum.Progress = float64(sum.Completed) / float64(sum.Total)
	}
	return sum
}
