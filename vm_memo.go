package nezvm

// memoEntry is the outcome of a rule at a given input position.
// Entries are keyed by (pos, memoPoint) and an empty slot has pos -1.
type memoEntry struct {
	pos       int
	memoPoint int
	consumed  int
	failed    bool

	// node holds a reference on the node built by the rule, or
	// NoNode for rules that don't build any.
	node NodeID
}

// memoTable is a fixed size packrat table.  It keeps `slots` input
// positions for each memo point and a position only ever maps to
// one slot, so two positions that collide evict each other.  The
// record that loses is silently forgotten: the worst case is the
// rule running again, never a wrong answer.
type memoTable struct {
	entries []memoEntry
	width   int
	slots   int
	arena   *Arena

	hits      int
	misses    int
	evictions int
}

func newMemoTable(arena *Arena, memoPoints, slots int) *memoTable {
	if slots < 1 {
		slots = 1
	}
	m := &memoTable{
		entries: make([]memoEntry, memoPoints*slots),
		width:   memoPoints,
		slots:   slots,
		arena:   arena,
	}
	for i := range m.entries {
		m.entries[i] = memoEntry{pos: -1, node: NoNode}
	}
	return m
}

func (m *memoTable) index(pos, memoPoint int) int {
	return (pos%m.slots)*m.width + memoPoint
}

func (m *memoTable) valid(memoPoint int) bool {
	return memoPoint >= 0 && memoPoint < m.width
}

// record stores the outcome of memoPoint at pos.  The table takes its
// own reference on node.
func (m *memoTable) record(pos, memoPoint, consumed int, failed bool, node NodeID) {
	if !m.valid(memoPoint) {
		return
	}
	e := &m.entries[m.index(pos, memoPoint)]
	if e.pos >= 0 && e.pos != pos {
		m.evictions++
	}
	m.arena.Retain(node)
	m.arena.Release(e.node)
	*e = memoEntry{
		pos:       pos,
		memoPoint: memoPoint,
		consumed:  consumed,
		failed:    failed,
		node:      node,
	}
}

// lookup returns the outcome recorded for memoPoint at pos
func (m *memoTable) lookup(pos, memoPoint int) (memoEntry, bool) {
	if !m.valid(memoPoint) {
		m.misses++
		return memoEntry{}, false
	}
	e := m.entries[m.index(pos, memoPoint)]
	if e.pos != pos {
		m.misses++
		return memoEntry{}, false
	}
	m.hits++
	return e, true
}

// reset forgets every record and drops the references they held
func (m *memoTable) reset() {
	for i := range m.entries {
		e := &m.entries[i]
		m.arena.Release(e.node)
		*e = memoEntry{pos: -1, node: NoNode}
	}
	m.hits, m.misses, m.evictions = 0, 0, 0
}
