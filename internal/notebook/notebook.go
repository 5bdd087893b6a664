// ABOUTME: Notebook abstraction the suggestion engine mutates — cell CRUD
// ABOUTME: plus execution, decoupled from any concrete document host.

package notebook

import (
	"context"
	"errors"

	"github.com/quill-labs/quill-agent/internal/protocol"
)

// ErrCellNotFound indicates an operation referenced a cell id that is not in
// the document.
var ErrCellNotFound = errors.New("cell not found")

// Notebook is the mutable document the agent's suggestions act on. All
// methods take a context because a real host round-trips to a kernel or an
// editor process.
type Notebook interface {
	// CreateCell inserts a cell with the given code. refID and placement
	// position it relative to an existing cell; an empty refID appends
	// (or prepends for PlaceBefore). The new cell's id is returned.
	CreateCell(ctx context.Context, code, refID string, placement protocol.Placement) (string, error)

	// UpdateCellCode replaces the code of an existing cell.
	UpdateCellCode(ctx context.Context, id, code string) error

	// DeleteCell removes a cell from the document.
	DeleteCell(ctx context.Context, id string) error

	// Run executes the given cells in order.
	Run(ctx context.Context, ids []string) error
}
