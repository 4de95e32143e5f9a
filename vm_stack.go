package nezvm

type frameType int

const (
	// frameType_Backtracking frames hold either a saved cursor or a
	// saved log mark.  Both are plain offsets and which one a frame
	// holds is only known by the instructions that push and pop it.
	frameType_Backtracking frameType = iota

	// frameType_Call frames hold the return address of a CALL
	frameType_Call
)

type frame struct {
	t     frameType
	value int

	// commits is the number of nodes the context had committed
	// when a PUSHpos saved this cursor
	commits int
}

// stack is the bounded backtracking stack.  The compiled program is
// trusted to keep pushes and pops balanced, so the only checks done
// here are the bounds.
type stack struct {
	frames   []frame
	maxDepth int
	highest  int
}

func newStack(maxDepth int) *stack {
	initial := maxDepth
	if initial > 64 {
		initial = 64
	}
	return &stack{frames: make([]frame, 0, initial), maxDepth: maxDepth}
}

func (s *stack) push(f frame) error {
	if len(s.frames) >= s.maxDepth {
		return ErrStackOverflow
	}
	s.frames = append(s.frames, f)
	if len(s.frames) > s.highest {
		s.highest = len(s.frames)
	}
	return nil
}

func (s *stack) pushPos(pos int) error {
	return s.push(frame{t: frameType_Backtracking, value: pos})
}

func (s *stack) pushCursor(pos, commits int) error {
	return s.push(frame{t: frameType_Backtracking, value: pos, commits: commits})
}

func (s *stack) pushCall(pc int) error {
	return s.push(frame{t: frameType_Call, value: pc})
}

func (s *stack) pop() (frame, error) {
	idx := len(s.frames) - 1
	if idx < 0 {
		return frame{}, ErrStackUnderflow
	}
	f := s.frames[idx]
	s.frames = s.frames[:idx]
	return f, nil
}

func (s *stack) top() (frame, error) {
	idx := len(s.frames) - 1
	if idx < 0 {
		return frame{}, ErrStackUnderflow
	}
	return s.frames[idx], nil
}

func (s *stack) len() int {
	return len(s.frames)
}

func (s *stack) reset() {
	s.frames = s.frames[:0]
}
