package engine

// State is a lifecycle state of the engine.
type State int32

// Lifecycle states.
const (
	StateUninitialized State = iota
	StateResetting
	StateConfigPending
	StateReady
	StateFaulted // terminal, reached only by reset timeout
)

func (st State) String() string {
	switch st {
	case StateUninitialized:
		return "uninitialized"
	case StateResetting:
		return "resetting"
	case StateConfigPending:
		return "config-pending"
	case StateReady:
		return "ready"
	case StateFaulted:
		return "faulted"
	}
	return "invalid"
}
