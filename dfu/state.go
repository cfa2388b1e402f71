package dfu

import "time"

// State is one of the core's five lifecycle states (§4.1).
type State uint8

const (
	StateFindFWID State = iota
	StateReq
	StateReady
	StateTarget
	StateRampdown
)

func (s State) String() string {
	switch s {
	case StateFindFWID:
		return "FIND_FWID"
	case StateReq:
		return "DFU_REQ"
	case StateReady:
		return "DFU_READY"
	case StateTarget:
		return "DFU_TARGET"
	case StateRampdown:
		return "RAMPDOWN"
	default:
		return "UNKNOWN"
	}
}

// State timeouts (§4.1).
const (
	findFWIDTimeout = 500 * time.Millisecond
	reqTimeout      = 1 * time.Second
	readyTimeout    = 3 * time.Second
	targetTimeout   = 5 * time.Second
	rampdownTimeout = 1 * time.Second
)

func timeoutFor(s State) time.Duration {
	switch s {
	case StateFindFWID:
		return findFWIDTimeout
	case StateReq:
		return reqTimeout
	case StateReady:
		return readyTimeout
	case StateTarget:
		return targetTimeout
	case StateRampdown:
		return rampdownTimeout
	default:
		return 0
	}
}
