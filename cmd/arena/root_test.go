package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"gotest.tools/v3/assert"
)

const boardJSON = `{
	"width": 2, "height": 2, "points": [1, 2, 3, 4],
	"seats": 2, "agentsPerSeat": 1, "totalTurns": 5,
	"operationSeconds": 3, "transitionSeconds": 1
}`

func run(t *testing.T, args ...string) (string, error) {
	cmd := newRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBoardPutAndList(t *testing.T) {
	mr := miniredis.RunT(t)
	file := filepath.Join(t.TempDir(), "board.json")
	assert.NilError(t, os.WriteFile(file, []byte(boardJSON), 0o600))

	out, err := run(t, "board", "put", "small", "--file", file, "--redis-address", mr.Addr())
	assert.NilError(t, err)
	assert.Equal(t, "stored board \"small\" (2x2, 2 seats)\n", out)

	out, err = run(t, "board", "list", "--redis-address", mr.Addr())
	assert.NilError(t, err)
	assert.Equal(t, "small\n", out)
}

func TestBoardPutRequiresName(t *testing.T) {
	mr := miniredis.RunT(t)
	file := filepath.Join(t.TempDir(), "board.json")
	assert.NilError(t, os.WriteFile(file, []byte(boardJSON), 0o600))

	_, err := run(t, "board", "put", "--file", file, "--redis-address", mr.Addr())
	assert.ErrorContains(t, err, "board name is required")

	_, err = run(t, "board", "put", "x", "--file", filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to read")
}
