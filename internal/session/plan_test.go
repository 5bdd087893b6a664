// ABOUTME: Tests for the execution plan tracker.
// ABOUTME: Verifies in-place updates, order preservation, and progress rules.

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quill-labs/quill-agent/internal/protocol"
)

func twoStepPlan() []protocol.Step {
	return []protocol.Step{
		{StepID: "s1", Description: "create cell", Status: protocol.StepPending},
		{StepID: "s2", Description: "run cell", Status: protocol.StepPending},
	}
}

func TestPlan_UpdatePreservesOrderAndLength(t *testing.T) {
	s := NewStore(protocol.DefaultAgentConfig(), nil)
	s.SetPlan(twoStepPlan())

	s.UpdateStep("s2", protocol.StepComplete, map[string]any{"cell_id": "c1"}, "")

	plan := s.Snapshot().Plan
	require.Len(t, plan, 2)
	assert.Equal(t, "s1", plan[0].StepID)
	assert.Equal(t, protocol.StepPending, plan[0].Status)
	assert.Equal(t, "s2", plan[1].StepID)
	assert.Equal(t, protocol.StepComplete, plan[1].Status)
	assert.NotNil(t, plan[1].Result)
}

func TestPlan_UnknownStepIsDropped(t *testing.T) {
	s := NewStore(protocol.DefaultAgentConfig(), nil)
	s.SetPlan(twoStepPlan())

	before := s.Snapshot().Plan
	s.UpdateStep("nope", protocol.StepComplete, nil, "")
	assert.Equal(t, before, s.Snapshot().Plan)
}

func TestPlan_ZeroValuesLeaveFieldsUntouched(t *testing.T) {
	s := NewStore(protocol.DefaultAgentConfig(), nil)
	s.SetPlan([]protocol.Step{
		{StepID: "s1", Status: protocol.StepExecuting, Error: "transient"},
	})

	s.UpdateStep("s1", "", map[string]any{"ok": true}, "")

	plan := s.Snapshot().Plan
	assert.Equal(t, protocol.StepExecuting, plan[0].Status)
	assert.Equal(t, "transient", plan[0].Error)
	assert.NotNil(t, plan[0].Result)
}

func TestPlan_TerminalStatusClearsExecutingStep(t *testing.T) {
	s := NewStore(protocol.DefaultAgentConfig(), nil)
	s.SetPlan(twoStepPlan())

	s.SetExecutingStep("s1")
	s.UpdateStep("s1", protocol.StepExecuting, nil, "")
	assert.Equal(t, "s1", s.Snapshot().ExecutingStep)

	s.UpdateStep("s1", protocol.StepError, nil, "kernel died")
	snap := s.Snapshot()
	assert.Empty(t, snap.ExecutingStep)
	assert.Equal(t, "kernel died", snap.Plan[0].Error)
}

func TestPlan_ProgressOnlyWhileExecuting(t *testing.T) {
	s := NewStore(protocol.DefaultAgentConfig(), nil)
	s.SetPlan(twoStepPlan())

	s.SetStepProgress("s1", 0.5)
	assert.Zero(t, s.Snapshot().Plan[0].Progress)

	s.UpdateStep("s1", protocol.StepExecuting, nil, "")
	s.SetStepProgress("s1", 0.5)
	assert.Equal(t, 0.5, s.Snapshot().Plan[0].Progress)

	// Leaving the executing state resets progress.
	s.UpdateStep("s1", protocol.StepComplete, nil, "")
	assert.Zero(t, s.Snapshot().Plan[0].Progress)
}

func TestPlan_NextPendingStep(t *testing.T) {
	s := NewStore(protocol.DefaultAgentConfig(), nil)
	assert.Nil(t, s.NextPendingStep())

	s.SetPlan(twoStepPlan())
	s.UpdateStep("s1", protocol.StepComplete, nil, "")

	next := s.NextPendingStep()
	require.NotNil(t, next)
	assert.Equal(t, "s2", next.StepID)

	s.UpdateStep("s2", protocol.StepCancelled, nil, "")
	assert.Nil(t, s.NextPendingStep())
}

func TestPlan_Summary(t *testing.T) {
	s := NewStore(protocol.DefaultAgentConfig(), nil)
	s.SetPlan([]protocol.Step{
		{StepID: "s1", Status: protocol.StepPending},
		{StepID: "s2", Status: protocol.StepPending},
		{StepID: "s3", Status: protocol.StepPending},
		{StepID: "s4", Status: protocol.StepPending},
	})
	s.UpdateStep("s1", protocol.StepComplete, nil, "")
	s.UpdateStep("s2", protocol.StepComplete, nil, "")
	s.UpdateStep("s3", protocol.StepError, nil, "boom")

	sum := s.PlanSummary()
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 2, sum.Completed)
	assert.Equal(t, 1, sum.Errors)
	assert.Equal(t, 0.5, sum.Progress)
}

func TestPlan_SetPlanReplacesWholesale(t *testing.T) {
	s := NewStore(protocol.DefaultAgentConfig(), nil)
	s.SetPlan(twoStepPlan())
	s.SetExecutingStep("s1")

	s.SetPlan([]protocol.Step{{StepID: "t1", Status: protocol.StepPending}})

	snap := s.Snapshot()
	require.Len(t, snap.Plan, 1)
	assert.Equal(t, "t1", snap.Plan[0].StepID)
	assert.Empty(t, snap.ExecutingStep)
}
