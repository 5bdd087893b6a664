// ABOUTME: Tests for the fake server's TOML reply script.
// ABOUTME: Covers parsing, validation, and keyword matching.

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScript(t *testing.T) {
	path := writeScript(t, `
chunk_delay = "10ms"

[[reply]]
match = "plot"
message = "Here is a plot."
stream = true

[[reply.suggestions]]
kind = "new_cell"
code = "plt.plot(y)"
description = "Create a plot cell"

[[reply]]
match = "fail"
message = "This will not go well."

[[reply.plan]]
description = "doomed step"
fail = true
error = "kernel exploded"
`)

	script, err := LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, script.ChunkDelay)
	require.Len(t, script.Replies, 2)
	assert.Equal(t, "plt.plot(y)", script.Replies[0].Suggestions[0].Code)
	assert.True(t, script.Replies[1].Plan[0].Fail)
}

func TestLoadScript_RejectsUnknownKind(t *testing.T) {
	path := writeScript(t, `
[[reply]]
match = "x"
message = "y"

[[reply.suggestions]]
kind = "merge_cell"
`)

	_, err := LoadScript(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge_cell")
}

func TestLoadScript_RejectsEmptyMessage(t *testing.T) {
	path := writeScript(t, `
[[reply]]
match = "x"
`)

	_, err := LoadScript(path)
	assert.Error(t, err)
}

func TestScript_Lookup(t *testing.T) {
	script := &Script{Replies: []Reply{
		{Match: "plot", Message: "Here is a plot."},
		{Match: "table", Message: "Here is a table."},
	}}

	assert.Equal(t, "Here is a plot.", script.Lookup("please PLOT y").Message)
	assert.Equal(t, "Here is a table.", script.Lookup("show a table").Message)

	// No match falls back to a streamed echo.
	echo := script.Lookup("something else")
	assert.Contains(t, echo.Message, "something else")
	assert.True(t, echo.Stream)
}
