package types

import (
	"sort"
)

// Player occupies one seat of a match. AccessToken is the 6-digit code handed out on attach and is
// never part of a public snapshot.
type Player struct {
	ID          string     `json:"id"`
	Kind        PlayerKind `json:"kind"`
	AccessToken string     `json:"-"`
	Agents      []Position `json:"agents"`
}

// Match is the authoritative record of one game instance. Only the scheduler advances Phase and Turn;
// the reconciler only touches PendingActions.
type Match struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Category       string         `json:"category"`
	Phase          Phase          `json:"phase"`
	Board          Board          `json:"board"`
	StartUnixTime  *int64         `json:"startedAtUnixTime"`
	Turn           int            `json:"turn"`
	Players        []Player       `json:"players"`
	ReservedSeats  []string       `json:"reservedSeats,omitempty"`
	Field          Field          `json:"field"`
	Log            []TurnRecord   `json:"log"`
	CreatedAt      int64          `json:"createdAt"`
	ConcludedAt    int64          `json:"concludedAt,omitempty"`
	PendingActions map[int]Action `json:"-"`
}

func (m *Match) IsFull() bool {
	return len(m.Players) >= m.Board.Seats
}

// SeatOf returns the seat index of the player with the given id.
func (m *Match) SeatOf(playerID string) (int, bool) {
	for i, p := range m.Players {
		if p.ID == playerID {
			return i, true
		}
	}
	return -1, false
}

// SeatByToken returns the seat index holding the given access token.
func (m *Match) SeatByToken(token string) (int, bool) {
	if token == "" {
		return -1, false
	}
	for i, p := range m.Players {
		if p.AccessToken == token {
			return i, true
		}
	}
	return -1, false
}

// IsReserved reports whether the player id may take a seat. An empty allow-list admits anyone.
func (m *Match) IsReserved(playerID string) bool {
	if len(m.ReservedSeats) == 0 {
		return true
	}
	for _, id := range m.ReservedSeats {
		if id == playerID {
			return true
		}
	}
	return false
}

// Start returns StartUnixTime or 0 when the match is not armed yet.
func (m *Match) Start() int64 {
	if m.StartUnixTime == nil {
		return 0
	}
	return *m.StartUnixTime
}

// LastRecord returns the most recent log entry.
func (m *Match) LastRecord() (TurnRecord, bool) {
	if len(m.Log) == 0 {
		return TurnRecord{}, false
	}
	return m.Log[len(m.Log)-1], true
}

// PendingAgents returns the agent ids that have a pending action, in ascending order.
func (m *Match) PendingAgents() []int {
	ids := make([]int, 0, len(m.PendingActions))
	for id := range m.PendingActions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Snapshot returns a deep copy of the match. Snapshots are handed to subscribers and storage so that
// later mutations of the live record never leak into them.
func (m *Match) Snapshot() *Match {
	out := *m
	out.Board = m.Board.Copy()
	out.Field = m.Field.Copy()
	if m.StartUnixTime != nil {
		start := *m.StartUnixTime
		out.StartUnixTime = &start
	}
	out.Players = make([]Player, len(m.Players))
	for i, p := range m.Players {
		p.Agents = append([]Position(nil), p.Agents...)
		out.Players[i] = p
	}
	out.ReservedSeats = append([]string(nil), m.ReservedSeats...)
	out.Log = make([]TurnRecord, len(m.Log))
	for i, r := range m.Log {
		r.Actions = append([]AppliedAction(nil), r.Actions...)
		r.Scores = append([]Score(nil), r.Scores...)
		out.Log[i] = r
	}
	out.PendingActions = make(map[int]Action, len(m.PendingActions))
	for k, v := range m.PendingActions {
		out.PendingActions[k] = v
	}
	return &out
}
