// Package testutils holds fixtures shared by the package tests.
package testutils

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"pkg.world.dev/world-engine/arena/storage/redis"
	"pkg.world.dev/world-engine/arena/types"
)

func SetTestTimeout(t *testing.T, timeout time.Duration) {
	if _, ok := t.Deadline(); ok {
		// A deadline has already been set. Don't add an additional deadline.
		return
	}
	success := make(chan bool)
	t.Cleanup(func() {
		success <- true
	})
	go func() {
		select {
		case <-success:
			// test was successful. Do nothing
		case <-time.After(timeout):
			panic("test timed out")
		}
	}()
}

// NewRedisStorage returns a storage backed by an in-memory redis that lives as long as the test.
func NewRedisStorage(t *testing.T, namespace string) (*redis.Storage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rs := redis.NewRedisStorage(redis.Options{
		Addr:     mr.Addr(),
		Password: "", // no password set
		DB:       0,  // use default DB
	}, namespace)
	t.Cleanup(func() { _ = rs.Close() })
	return rs, mr
}

// Board returns a square board with every point set to 1, one second operation and transition windows.
func Board(size, seats, agentsPerSeat, turns int) types.Board {
	points := make([]int, size*size)
	for i := range points {
		points[i] = 1
	}
	return types.Board{
		Name:              "test",
		Width:             size,
		Height:            size,
		Points:            points,
		Seats:             seats,
		AgentsPerSeat:     agentsPerSeat,
		TotalTurns:        turns,
		OperationSeconds:  1,
		TransitionSeconds: 1,
	}
}
