package nezvm

import "bytes"

// run is the interpreter loop.  Its registers are pc, cursor and the
// fail flag; everything else lives in the context.  Instructions that
// can fail carry their own fallback target, so the loop never has to
// search for a choice point.
func (c *Context) run(p *Program) (Result, error) {
	var (
		code    = p.Code
		input   = c.input
		pc      = p.Start
		cursor  = 0
		failed  = false
		steps   = 0
		tracer  = c.tracer
		memoOn  = c.cfg.GetBool("vm.memo.enabled")
		allocs0 = c.arena.Allocs()
	)

	finish := func() {
		c.cursor = cursor
		c.stats.Steps = steps
		c.stats.MemoHits = c.memo.hits
		c.stats.MemoMisses = c.memo.misses
		c.stats.MemoEvictions = c.memo.evictions
		c.stats.NodesAllocated = c.arena.Allocs() - allocs0
		c.stats.MaxStackDepth = c.stack.highest
	}

	fatal := func(err error) (Result, error) {
		rerr := &RuntimeError{Err: err, PC: pc, Cursor: cursor}
		if pc >= 0 && pc < len(code) {
			rerr.Op = formatInstruction(code[pc])
		}
		c.log.abort(0)
		c.stack.reset()
		finish()
		return Result{Cursor: cursor, Root: NoNode}, rerr
	}

	// the start rule returns into the EXIT that lives at the very
	// first instruction of every program
	if err := c.stack.pushCall(0); err != nil {
		return fatal(err)
	}

	// popPos pops a saved cursor or log mark
	popPos := func() (int, error) {
		f, err := c.stack.pop()
		return f.value, err
	}

	// fallback sets the fail flag and moves to the target of the
	// instruction that just failed
	fallback := func(target int) {
		failed = true
		pc = target
	}

	for {
		// only reachable with programs that skipped Validate
		if pc < 0 || pc >= len(code) {
			return fatal(ErrBadTarget)
		}
		inst := code[pc]
		steps++
		if tracer != nil {
			tracer.Trace(pc, cursor, inst)
		}

		switch ii := inst.(type) {
		case IExit:
			res := Result{Success: !failed, Cursor: cursor, Root: NoNode}
			if failed {
				c.log.abort(0)
			} else {
				res.Root = c.log.commit(0, cursor)
			}
			c.stack.reset()
			finish()
			return res, nil

		case IJump:
			pc = ii.Target

		case ICall:
			if err := c.stack.pushCall(pc + 1); err != nil {
				return fatal(err)
			}
			pc = ii.Target

		case IRet:
			// positions and marks a rule left behind are dropped
			// along with its frame
			for {
				f, err := c.stack.pop()
				if err != nil {
					return fatal(err)
				}
				if f.t == frameType_Call {
					pc = f.value
					break
				}
			}

		case IIfFail:
			if failed {
				pc = ii.Target
			} else {
				pc++
			}

		case IIfSucc:
			if !failed {
				pc = ii.Target
			} else {
				pc++
			}

		case IChar:
			if cursor < len(input) && input[cursor] == ii.Char {
				cursor++
				pc++
			} else {
				fallback(ii.Fail)
			}

		case ICharMap:
			if cursor < len(input) && ii.Set.Has(input[cursor]) {
				cursor++
				pc++
			} else {
				fallback(ii.Fail)
			}

		case IString:
			if bytes.HasPrefix(input[cursor:], ii.Str) {
				cursor += len(ii.Str)
				pc++
			} else {
				fallback(ii.Fail)
			}

		case IAny:
			if cursor < len(input) {
				cursor++
				pc++
			} else {
				fallback(ii.Fail)
			}

		case IPushPos:
			if err := c.stack.pushCursor(cursor, c.commits); err != nil {
				return fatal(err)
			}
			pc++

		case IPushMark:
			if err := c.stack.pushPos(c.log.mark()); err != nil {
				return fatal(err)
			}
			pc++

		case IPopPos:
			if _, err := popPos(); err != nil {
				return fatal(err)
			}
			pc++

		case IGetPos:
			f, err := c.stack.top()
			if err != nil {
				return fatal(err)
			}
			cursor = f.value
			pc++

		case IStorePos:
			pos, err := popPos()
			if err != nil {
				return fatal(err)
			}
			cursor = pos
			pc++

		case IStoreFlag:
			failed = ii.Value
			pc++

		case INew:
			if err := c.stack.pushPos(c.log.mark()); err != nil {
				return fatal(err)
			}
			c.log.pushNew(cursor)
			pc++

		case ILeftJoin:
			c.log.pushLeftJoin(cursor, ii.Index)
			pc++

		case ICapture:
			c.log.pushCapture(cursor)
			pc++

		case ICommit:
			mark, err := popPos()
			if err != nil {
				return fatal(err)
			}
			node := c.log.commit(mark, cursor)
			c.setLeft(node)
			c.commits++
			c.log.pushLink(ii.Index, node)
			pc++

		case IAbort:
			mark, err := popPos()
			if err != nil {
				return fatal(err)
			}
			c.log.abort(mark)
			pc++

		case ITag:
			c.log.pushTag(ii.Tag)
			pc++

		case IValue:
			c.log.pushValue(ii.Value)
			pc++

		case INotChar:
			if cursor < len(input) && input[cursor] == ii.Char {
				fallback(ii.Fail)
			} else {
				pc++
			}

		case INotCharMap:
			if cursor < len(input) && ii.Set.Has(input[cursor]) {
				fallback(ii.Fail)
			} else {
				pc++
			}

		case INotString:
			if bytes.HasPrefix(input[cursor:], ii.Str) {
				fallback(ii.Fail)
			} else {
				pc++
			}

		case INotCharAny:
			if cursor >= len(input) || input[cursor] == ii.Char {
				fallback(ii.Fail)
			} else {
				cursor++
				pc++
			}

		case IOptionalChar:
			if cursor < len(input) && input[cursor] == ii.Char {
				cursor++
			}
			pc++

		case IOptionalCharMap:
			if cursor < len(input) && ii.Set.Has(input[cursor]) {
				cursor++
			}
			pc++

		case IOptionalString:
			if bytes.HasPrefix(input[cursor:], ii.Str) {
				cursor += len(ii.Str)
			}
			pc++

		case IZeroMoreCharMap:
			for cursor < len(input) && ii.Set.Has(input[cursor]) {
				cursor++
			}
			pc++

		case IMemoize:
			start, err := popPos()
			if err != nil {
				return fatal(err)
			}
			if failed {
				cursor = start
			}
			if memoOn {
				c.memo.record(start, ii.MemoPoint, cursor-start, failed, NoNode)
			}
			pc++

		case IMemoizeNode:
			f, err := c.stack.pop()
			if err != nil {
				return fatal(err)
			}
			start := f.value
			node := NoNode
			if failed {
				cursor = start
			} else if f.commits != c.commits {
				// left is only the rule's node when the rule
				// committed one after its PUSHpos
				node = c.left
			}
			if memoOn {
				c.memo.record(start, ii.MemoPoint, cursor-start, failed, node)
			}
			pc++

		case ILookup:
			e, ok := c.lookup(memoOn, cursor, ii.MemoPoint)
			if !ok {
				pc++
				continue
			}
			failed = e.failed
			cursor += e.consumed
			pc = ii.Target

		case ILookupNode:
			e, ok := c.lookup(memoOn, cursor, ii.MemoPoint)
			if !ok {
				pc++
				continue
			}
			failed = e.failed
			cursor += e.consumed
			if !e.failed && e.node != NoNode {
				c.arena.Retain(e.node)
				c.setLeft(e.node)
				c.commits++
				c.log.pushLink(ii.Index, e.node)
			}
			pc = ii.Target

		default:
			return fatal(ErrBadOpcode)
		}
	}
}

func (c *Context) lookup(enabled bool, pos, memoPoint int) (memoEntry, bool) {
	if !enabled {
		return memoEntry{}, false
	}
	return c.memo.lookup(pos, memoPoint)
}
