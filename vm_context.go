package nezvm

// Context owns every piece of mutable state a parse needs: the input,
// the backtracking stack, the construction log, the memo table and
// the node arena.  A Context must not be shared between goroutines,
// but any number of contexts can run the same Program concurrently.
type Context struct {
	input  []byte
	cursor int

	stack *stack
	log   *lazyLog
	memo  *memoTable
	arena *Arena

	// left holds a reference on the node built by the most recent
	// COMMIT, which is what MEMOIZENODE records
	left NodeID

	// commits counts COMMITs and LOOKUPNODE hits, so MEMOIZENODE can
	// tell whether left was set by the rule it closes
	commits int

	cfg    *Config
	tracer Tracer
	stats  Stats
	closed bool
}

// Result is the outcome of a parse.  Root carries one reference that
// belongs to the caller, who must hand it back with Release.  Root is
// NoNode when the parse failed.
type Result struct {
	Success bool
	Cursor  int
	Root    NodeID
}

// Stats are the counters collected by a context over its last parse
type Stats struct {
	Steps          int
	MemoHits       int
	MemoMisses     int
	MemoEvictions  int
	NodesAllocated int
	MaxStackDepth  int
}

// NewContext prepares a context for parsing input.  A nil cfg uses
// the defaults of NewConfig.
func NewContext(input []byte, cfg *Config) *Context {
	if cfg == nil {
		cfg = NewConfig()
	}
	arena := NewArena(cfg.GetInt("vm.arena.nodes"))
	return &Context{
		input: input,
		stack: newStack(cfg.GetInt("vm.stack.max_depth")),
		log:   newLazyLog(arena, cfg.GetInt("vm.log.entries")),
		arena: arena,
		left:  NoNode,
		cfg:   cfg,
	}
}

// SetTracer installs a tracer that sees every dispatched instruction.
// Passing nil turns tracing off.
func (c *Context) SetTracer(t Tracer) {
	c.tracer = t
}

func (c *Context) Input() []byte { return c.input }

func (c *Context) Arena() *Arena { return c.arena }

func (c *Context) Stats() Stats { return c.stats }

// Export copies the subtree rooted at id into garbage collected nodes
func (c *Context) Export(id NodeID) *Node {
	return c.arena.Export(id, c.input)
}

// Release hands back a reference obtained from Result.Root
func (c *Context) Release(id NodeID) {
	c.arena.Release(id)
}

// Parse runs p from its start rule over the whole input.  Recognition
// failure is reported through Result.Success; the error return is
// reserved for resource problems, which are always *RuntimeError.
func (c *Context) Parse(p *Program) (Result, error) {
	if c.closed {
		panic("nezvm: Parse called on a closed context")
	}
	c.prepare(p)
	return c.run(p)
}

// Reset forgets the outcome of the previous parse so the same input
// can be parsed again.  Roots already handed to the caller stay valid.
// Reset does nothing once the context is closed.
func (c *Context) Reset() {
	if c.closed {
		return
	}
	c.cursor = 0
	c.stack.reset()
	c.stack.highest = 0
	c.log.abort(0)
	c.arena.Release(c.left)
	c.left = NoNode
	c.commits = 0
	if c.memo != nil {
		c.memo.reset()
	}
	c.stats = Stats{}
}

// Close drops every reference the context holds.  Nodes the caller
// still retains stay readable through Arena until released.
func (c *Context) Close() {
	if c.closed {
		return
	}
	c.Reset()
	c.memo = nil
	c.stack = nil
	c.input = nil
	c.closed = true
}

func (c *Context) prepare(p *Program) {
	c.Reset()
	slots := c.cfg.GetInt("vm.memo.slots")
	if c.memo == nil || c.memo.width != p.MemoPoints || c.memo.slots != max(slots, 1) {
		c.memo = newMemoTable(c.arena, p.MemoPoints, slots)
	}
}

func (c *Context) setLeft(id NodeID) {
	c.arena.Retain(id)
	c.arena.Release(c.left)
	c.left = id
}
