package ocr

// State is the client lifecycle. It only moves forward.
type State int

const (
	StateStarting State = iota
	StateReady
	StateExited
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateExited:
		return "exited"
	}
	return "unknown"
}
