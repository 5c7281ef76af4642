package rules

import (
	"pkg.world.dev/world-engine/arena/types"
)

// Scores computes the wall and area points of every seat. Wall points are the sum of the cells a seat
// owns. Area points are the absolute values of the cells that cannot reach the edge of the board
// without crossing one of the seat's walls.
func Scores(board types.Board, field types.Field) []types.Score {
	scores := make([]types.Score, board.Seats)
	for i, tile := range field.Tiles {
		if tile.Kind == types.TileWall && tile.Owner >= 0 && tile.Owner < board.Seats {
			scores[tile.Owner].Wall += board.Points[i]
		}
	}
	for seat := range scores {
		for _, idx := range enclosed(board, field, seat) {
			p := board.Points[idx]
			if p < 0 {
				p = -p
			}
			scores[seat].Area += p
		}
	}
	return scores
}

// enclosed flood fills from the border through every cell that is not a wall of seat and returns the
// cells that were never reached and are not walls of seat themselves.
func enclosed(board types.Board, field types.Field, seat int) []int {
	isWall := func(idx int) bool {
		t := field.Tiles[idx]
		return t.Kind == types.TileWall && t.Owner == seat
	}

	reached := make([]bool, len(field.Tiles))
	queue := make([]int, 0, 2*(board.Width+board.Height))
	push := func(x, y int) {
		if !board.InBounds(x, y) {
			return
		}
		idx := board.Index(x, y)
		if reached[idx] || isWall(idx) {
			return
		}
		reached[idx] = true
		queue = append(queue, idx)
	}

	for x := 0; x < board.Width; x++ {
		push(x, 0)
		push(x, board.Height-1)
	}
	for y := 0; y < board.Height; y++ {
		push(0, y)
		push(board.Width-1, y)
	}
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		x, y := idx%board.Width, idx/board.Width
		push(x+1, y)
		push(x-1, y)
		push(x, y+1)
		push(x, y-1)
	}

	var out []int
	for idx := range field.Tiles {
		if !reached[idx] && !isWall(idx) {
			out = append(out, idx)
		}
	}
	return out
}
