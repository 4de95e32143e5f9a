package nezvm

type logType uint8

const (
	logType_New logType = iota
	logType_Capture
	logType_Tag
	logType_Value
	logType_Link
	logType_LeftJoin
)

var logTypeNames = map[logType]string{
	logType_New:      "new",
	logType_Capture:  "capture",
	logType_Tag:      "tag",
	logType_Value:    "value",
	logType_Link:     "link",
	logType_LeftJoin: "left_join",
}

func (t logType) String() string { return logTypeNames[t] }

type logEntry struct {
	t logType

	// pos is the input offset recorded by New, Capture and LeftJoin
	pos int

	// index is the child slot of Link and LeftJoin entries
	index int

	// text holds the literal of Tag and Value entries
	text string

	// node is owned by Link entries until they are replayed or
	// discarded
	node NodeID
}

// lazyLog records tree construction events while the machine is
// still guessing.  Nothing is allocated in the arena until a commit
// replays the events, so paths that end up failing only cost the
// log pushes.
//
// The entries slice doubles as the log arena: abort and commit
// truncate it and the freed tail is reused by later pushes.
type lazyLog struct {
	entries []logEntry
	arena   *Arena

	// slots accumulates children while a commit replays the log
	slots []NodeID
}

type accumulator struct {
	start    int
	end      int
	tag      string
	value    string
	hasValue bool
}

func newLazyLog(arena *Arena, capacity int) *lazyLog {
	return &lazyLog{
		entries: make([]logEntry, 0, capacity),
		arena:   arena,
		slots:   make([]NodeID, 0, 16),
	}
}

// mark returns a checkpoint that can later be handed to commit or
// abort
func (l *lazyLog) mark() int { return len(l.entries) }

func (l *lazyLog) push(e logEntry) {
	l.entries = append(l.entries, e)
}

func (l *lazyLog) pushNew(pos int) {
	l.push(logEntry{t: logType_New, pos: pos, node: NoNode})
}

func (l *lazyLog) pushCapture(pos int) {
	l.push(logEntry{t: logType_Capture, pos: pos, node: NoNode})
}

func (l *lazyLog) pushTag(tag string) {
	l.push(logEntry{t: logType_Tag, text: tag, node: NoNode})
}

func (l *lazyLog) pushValue(value string) {
	l.push(logEntry{t: logType_Value, text: value, node: NoNode})
}

func (l *lazyLog) pushLeftJoin(pos, index int) {
	l.push(logEntry{t: logType_LeftJoin, pos: pos, index: index, node: NoNode})
}

// pushLink takes over the reference the caller holds on node
func (l *lazyLog) pushLink(index int, node NodeID) {
	l.push(logEntry{t: logType_Link, index: index, node: node})
}

// commit replays every entry pushed since mark, in push order, and
// folds them into a single node.  The returned node carries one
// reference that belongs to the caller.  cursor is used as the span
// of a node for which neither New nor Capture were recorded.
func (l *lazyLog) commit(mark, cursor int) NodeID {
	acc := accumulator{start: -1, end: -1}
	l.slots = l.slots[:0]

	for i := mark; i < len(l.entries); i++ {
		e := &l.entries[i]
		switch e.t {
		case logType_New:
			if acc.start < 0 {
				acc.start = e.pos
			}

		case logType_Capture:
			acc.end = e.pos

		case logType_Tag:
			acc.tag = e.text

		case logType_Value:
			acc.value = e.text
			acc.hasValue = true

		case logType_Link:
			idx := e.index
			if idx < 0 {
				idx = len(l.slots)
			}
			l.growSlots(idx + 1)
			if old := l.slots[idx]; old != NoNode {
				l.arena.Release(old)
			}
			l.slots[idx] = e.node
			e.node = NoNode

		case logType_LeftJoin:
			if acc.end < 0 {
				acc.end = e.pos
			}
			left := l.finalize(&acc, e.pos)
			start, _ := l.arena.Range(left)
			acc = accumulator{start: start, end: -1}
			idx := e.index
			if idx < 0 {
				idx = 0
			}
			l.slots = l.slots[:0]
			l.growSlots(idx + 1)
			l.slots[idx] = left
		}
	}

	id := l.finalize(&acc, cursor)
	l.truncate(mark)
	return id
}

// abort discards every entry pushed since mark without building
// anything.
func (l *lazyLog) abort(mark int) {
	for i := mark; i < len(l.entries); i++ {
		if e := &l.entries[i]; e.t == logType_Link && e.node != NoNode {
			l.arena.Release(e.node)
			e.node = NoNode
		}
	}
	l.truncate(mark)
}

func (l *lazyLog) truncate(mark int) {
	for i := mark; i < len(l.entries); i++ {
		l.entries[i] = logEntry{node: NoNode}
	}
	l.entries = l.entries[:mark]
}

func (l *lazyLog) growSlots(size int) {
	for len(l.slots) < size {
		l.slots = append(l.slots, NoNode)
	}
}

// finalize turns the accumulated state into a node.  Interior nodes
// get exactly as many child slots as the highest linked index
// required; leaves cover the accumulated span.
func (l *lazyLog) finalize(acc *accumulator, fallback int) NodeID {
	switch {
	case acc.start < 0 && acc.end < 0:
		acc.start, acc.end = fallback, fallback
	case acc.start < 0:
		acc.start = acc.end
	case acc.end < 0:
		acc.end = acc.start
	}
	tag := acc.tag
	if tag == "" {
		tag = EmptyTag
	}
	id := l.arena.alloc(acc.start, acc.end, tag, acc.value, acc.hasValue, len(l.slots))
	for i, child := range l.slots {
		if child != NoNode {
			l.arena.setChild(id, i, child)
		}
	}
	l.slots = l.slots[:0]
	return id
}
