package transport

// Sent records one transmission the Simulator observed, for tests to
// inspect what the core broadcast.
type Sent struct {
	Kind    PacketKind
	Payload []byte
	Repeat  Repeat
	Aborted bool
}

// Simulator is an in-process fake Mesh, grounded on the teacher's
// driver/mjolnir Simulator: a small struct recording every command a
// caller issues, with no goroutines of its own since the dfu core
// that drives it is itself single-threaded and never blocks on the
// transport.
type Simulator struct {
	localAddr [6]byte
	oom       bool

	live map[*Handle]*Sent
	Log  []*Sent
}

// NewSimulator builds a Simulator advertising from localAddr.
func NewSimulator(localAddr [6]byte) *Simulator {
	return &Simulator{
		localAddr: localAddr,
		live:      make(map[*Handle]*Sent),
	}
}

// FailNextAcquire makes the next Acquire call return ErrOutOfMemory,
// for exercising the core's fatal-abort-on-OOM path (§7).
func (s *Simulator) FailNextAcquire() {
	s.oom = true
}

func (s *Simulator) Acquire() (*Handle, error) {
	if s.oom {
		s.oom = false
		return nil, ErrOutOfMemory
	}
	return &Handle{}, nil
}

func (s *Simulator) Tx(buf *Handle, kind PacketKind, payload []byte, repeat Repeat) {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	rec := &Sent{Kind: kind, Payload: cp, Repeat: repeat}
	s.live[buf] = rec
	s.Log = append(s.Log, rec)
}

func (s *Simulator) TxAbort(buf *Handle) {
	if rec, ok := s.live[buf]; ok {
		rec.Aborted = true
		delete(s.live, buf)
	}
}

func (s *Simulator) LocalAddress() [6]byte {
	return s.localAddr
}

// Outstanding reports how many acquired buffers are currently
// in-flight (Tx'd but not yet aborted) — used to assert the beacon
// builder never leaks more than one outstanding beacon (§5).
func (s *Simulator) Outstanding() int {
	return len(s.live)
}

// Last returns the most recently transmitted, still-live frame, or
// nil if none.
func (s *Simulator) Last() *Sent {
	for i := len(s.Log) - 1; i >= 0; i-- {
		if !s.Log[i].Aborted {
			return s.Log[i]
		}
	}
	return nil
}
