package types

// Phase describes where a match is in its lifecycle.
type Phase string

const (
	// PhaseOpen matches are accepting players.
	PhaseOpen Phase = "open"
	// PhaseArmed matches have a full roster and are counting down to StartUnixTime.
	PhaseArmed Phase = "armed"
	// PhaseLive matches are running turns.
	PhaseLive Phase = "live"
	// PhaseConcluded matches are finished and immutable.
	PhaseConcluded Phase = "concluded"
)

var phases = []Phase{PhaseOpen, PhaseArmed, PhaseLive, PhaseConcluded}

// Phases returns every phase in lifecycle order.
func Phases() []Phase {
	out := make([]Phase, len(phases))
	copy(out, phases)
	return out
}

func (p Phase) Valid() bool {
	switch p {
	case PhaseOpen, PhaseArmed, PhaseLive, PhaseConcluded:
		return true
	}
	return false
}

func (p Phase) IsTerminal() bool {
	return p == PhaseConcluded
}

// Started reports whether StartUnixTime has been reached and turns are (or were) running.
func (p Phase) Started() bool {
	return p == PhaseLive || p == PhaseConcluded
}

type PlayerKind string

const (
	PlayerKindAccount PlayerKind = "account"
	PlayerKindGuest   PlayerKind = "guest"
)

func (k PlayerKind) Valid() bool {
	return k == PlayerKindAccount || k == PlayerKindGuest
}
