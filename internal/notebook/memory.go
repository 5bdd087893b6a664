// ABOUTME: In-memory notebook — an ordered cell list with execution history,
// ABOUTME: used by the CLI and as the reference implementation for tests.

package notebook

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/quill-labs/quill-agent/internal/protocol"
)

const defaultMaxRecentErrors = 5

// Cell is one entry in the in-memory document.
type Cell struct {
	ID   string
	Code string
}

// Memory is an in-memory Notebook. It also implements the session context
// provider, serving the document snapshot attached to chat requests.
type Memory struct {
	mu              sync.Mutex
	cells           []Cell
	activeCellID    string
	variables       map[string]any
	recentErrors    []map[string]any
	history         []string
	maxContextCells int
	run             RunFunc
}

// RunFunc executes one cell's code and returns its error, if any. The
// in-memory notebook has no kernel, so the host supplies execution.
type RunFunc func(ctx context.Context, cell Cell) error

// NewMemory creates an empty in-memory notebook. maxContextCells bounds how
// many cells the context snapshot carries; zero means the default of 20.
// runFn may be nil, in which case Run only records history.
func NewMemory(maxContextCells int, runFn RunFunc) *Memory {
	if maxContextCells <= 0 {
		maxContextCells = 20
	}
	return &Memory{
		variables:       make(map[string]any),
		maxContextCells: maxContextCells,
		run:             runFn,
	}
}

// CreateCell inserts a cell relative to refID. PlaceReplace swaps the code of
// the referenced cell in place and returns its id, keeping the cell identity
// stable for downstream plan steps.
func (m *Memory) CreateCell(_ context.Context, code, refID string, placement protocol.Placement) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if refID == "" {
		cell := Cell{ID: uuid.New().String(), Code: code}
		if placement == protocol.PlaceBefore {
			m.cells = append([]Cell{cell}, m.cells...)
		} else {
			m.cells = append(m.cells, cell)
		}
		return cell.ID, nil
	}

	idx := m.indexLocked(refID)
	if idx < 0 {
		return "", fmt.Errorf("creating cell relative to %q: %w", refID, ErrCellNotFound)
	}

	switch placement {
	case protocol.PlaceReplace:
		m.cells[idx].Code = code
		return m.cells[idx].ID, nil
	case protocol.PlaceBefore:
		cell := Cell{ID: uuid.New().String(), Code: code}
		m.cells = append(m.cells[:idx], append([]Cell{cell}, m.cells[idx:]...)...)
		return cell.ID, nil
	default: // after
		cell := Cell{ID: uuid.New().String(), Code: code}
		m.cells = append(m.cells[:idx+1], append([]Cell{cell}, m.cells[idx+1:]...)...)
		return cell.ID, nil
	}
}

// UpdateCellCode replaces the code of an existing cell.
func (m *Memory) UpdateCellCode(_ context.Context, id, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("updating cell %q: %w", id, ErrCellNotFound)
	}
	m.cells[idx].Code = code
	return nil
}

// DeleteCell removes a cell from the document.
func (m *Memory) DeleteCell(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("deleting cell %q: %w", id, ErrCellNotFound)
	}
	m.cells = append(m.cells[:idx], m.cells[idx+1:]...)
	if m.activeCellID == id {
		m.activeCellID = ""
	}
	return nil
}

// Run executes the given cells in order through the configured RunFunc.
// Each attempt lands in the execution history; a failure is also recorded in
// the recent-error window and stops the run.
func (m *Memory) Run(ctx context.Context, ids []string) error {
	for _, id := range ids {
		m.mu.Lock()
		idx := m.indexLocked(id)
		if idx < 0 {
			m.mu.Unlock()
			return fmt.Errorf("running cell %q: %w", id, ErrCellNotFound)
		}
		cell := m.cells[idx]
		runFn := m.run
		m.mu.Unlock()

		var err error
		if runFn != nil {
			err = runFn(ctx, cell)
		}

		m.mu.Lock()
		if err != nil {
			m.history = append(m.history, fmt.Sprintf("error in cell %s: %v", id, err))
			m.recentErrors = append(m.recentErrors, map[string]any{
				"cell_id": id,
				"error":   err.Error(),
			})
			if len(m.recentErrors) > defaultMaxRecentErrors {
				m.recentErrors = m.recentErrors[len(m.recentErrors)-defaultMaxRecentErrors:]
			}
			m.mu.Unlock()
			return fmt.Errorf("running cell %q: %w", id, err)
		}
		m.history = append(m.history, "ran cell "+id)
		m.mu.Unlock()
	}
	return nil
}

// SetActiveCell records the cell currently holding focus.
func (m *Memory) SetActiveCell(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeCellID = id
}

// SetVariable records a defined variable for the context snapshot.
func (m *Memory) SetVariable(name string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.variables[name] = value
}

// Cells returns a copy of the document in order.
func (m *Memory) Cells() []Cell {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Cell, len(m.cells))
	copy(out, m.cells)
	return out
}

// Cell returns the cell with the given id.
func (m *Memory) Cell(id string) (Cell, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx := m.indexLocked(id); idx >= 0 {
		return m.cells[idx], true
	}
	return Cell{}, false
}

// NotebookContext builds the document snapshot for a chat request. Cell codes
// are bounded by maxContextCells, keeping the most recent cells; the active
// cell is always included when set.
func (m *Memory) NotebookContext() *protocol.NotebookContext {
	m.mu.Lock()
	defer m.mu.Unlock()

	cells := m.cells
	if len(cells) > m.maxContextCells {
		cells = cells[len(cells)-m.maxContextCells:]
	}
	codes := make(map[string]string, len(cells))
	for _, c := range cells {
		codes[c.ID] = c.Code
	}
	if m.activeCellID != "" {
		if idx := m.indexLocked(m.activeCellID); idx >= 0 {
			codes[m.activeCellID] = m.cells[idx].Code
		}
	}

	vars := make(map[string]any, len(m.variables))
	for k, v := range m.variables {
		vars[k] = v
	}
	errs := make([]map[string]any, len(m.recentErrors))
	copy(errs, m.recentErrors)
	hist := make([]string, len(m.history))
	copy(hist, m.history)

	return &protocol.NotebookContext{
		ActiveCellID:     m.activeCellID,
		CellCodes:        codes,
		Variables:        vars,
		RecentErrors:     errs,
		ExecutionHistory: hist,
	}
}

func (m *Memory) indexLocked(id string) int {
	for i := range m.cells {
		if m.cells[i].ID == id {
			return i
		}
	}
	return -1
}
