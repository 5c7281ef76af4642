package testutils

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"testing"
	"time"

	"pkg.world.dev/world-engine/arena/types"
)

var Seed uint64 //nolint:gochecknoglobals // intentionally global for test reproducibility

func init() { //nolint:gochecknoinits // intentionally using init to set seed
	Seed = uint64(time.Now().UnixNano()) //nolint:gosec // it's ok
	if envSeed := os.Getenv("TEST_SEED"); envSeed != "" {
		parsed, err := strconv.ParseUint(envSeed, 0, 64)
		if err == nil { // Only set using the env if it's valid
			Seed = parsed
		}
	}
	fmt.Printf("to reproduce: TEST_SEED=0x%x\n", Seed) //nolint:forbidigo // just for testing
}

func NewRand(t *testing.T) *rand.Rand {
	t.Helper()
	return rand.New(rand.NewPCG(Seed, Seed)) //nolint:gosec // weak RNG is fine for tests
}

// RandBoard returns a valid board with random dimensions and points between -16 and 16.
func RandBoard(r *rand.Rand) types.Board {
	w, h := 2+r.IntN(9), 2+r.IntN(9)
	points := make([]int, w*h)
	for i := range points {
		points[i] = r.IntN(33) - 16
	}
	return types.Board{
		Name:              "random",
		Width:             w,
		Height:            h,
		Points:            points,
		Seats:             1 + r.IntN(3),
		AgentsPerSeat:     1 + r.IntN(3),
		TotalTurns:        1 + r.IntN(30),
		OperationSeconds:  1 + r.IntN(5),
		TransitionSeconds: 1 + r.IntN(3),
	}
}

// RandAction returns an action for a random agent, possibly out of range, with coordinates around the
// board so that both legal and illegal actions come up.
func RandAction(r *rand.Rand, b types.Board) types.Action {
	kinds := types.ActionTypes()
	return types.Action{
		AgentID: r.IntN(b.TotalAgents()+2) - 1,
		Type:    kinds[r.IntN(len(kinds))],
		X:       r.IntN(b.Width+2) - 1,
		Y:       r.IntN(b.Height+2) - 1,
	}
}
