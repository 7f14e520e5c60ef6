package window

// State is the shared lifecycle of readers and writers.
type State int

const (
	// Idle means nothing is mapped.
	Idle State = iota
	// Mapped means one frame is mapped into the window.
	Mapped
	// Finished is terminal.
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Mapped:
		return "mapped"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}
