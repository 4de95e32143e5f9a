package nezvm

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVM(t *testing.T) {
	t.Run("literal match builds a leaf over the consumed input", func(t *testing.T) {
		p := assemble(t, literalGrammar)
		res, ctx := parse(t, p, "ab")

		require.True(t, res.Success)
		assert.Equal(t, 2, res.Cursor)
		assert.Equal(t, &Node{Tag: "AB", Text: "ab", Start: 0, End: 2}, ctx.Export(res.Root))
	})

	t.Run("literal mismatch fails without committing a node", func(t *testing.T) {
		p := assemble(t, literalGrammar)
		res, ctx := parse(t, p, "ac")

		assert.False(t, res.Success)
		assert.Equal(t, NoNode, res.Root)
		assert.Equal(t, 0, ctx.Arena().Live())
	})

	t.Run("repetition over a class consumes the longest run", func(t *testing.T) {
		p := assemble(t, `
.start Digits
        EXIT
.rule Digits
        NEW
        CHARMAP [0-9] fail
        ZEROMORECHARMAP [0-9]
        CAPTURE
        TAG "Number"
fail:
        RET
`)
		res, ctx := parse(t, p, "123x")

		require.True(t, res.Success)
		assert.Equal(t, 3, res.Cursor)
		assert.Equal(t, &Node{Tag: "Number", Text: "123", Start: 0, End: 3}, ctx.Export(res.Root))
	})

	t.Run("left join folds repeated matches into one node", func(t *testing.T) {
		p := assemble(t, `
.start Seq
        EXIT
.rule Seq
        NEW
        CHAR 'a' fail
        CAPTURE
        TAG "A"
        LEFTJOIN 0
        NEW
        CHAR 'a' fail
        CAPTURE
        TAG "A"
        COMMIT -1
        NEW
        CHAR 'a' fail
        CAPTURE
        TAG "A"
        COMMIT -1
        CAPTURE
        TAG "Seq"
fail:
        RET
`)
		res, ctx := parse(t, p, "aaa")

		require.True(t, res.Success)
		assert.Equal(t, 3, res.Cursor)

		root := ctx.Export(res.Root)
		assert.Equal(t, &Node{
			Tag:   "Seq",
			Text:  "aaa",
			Start: 0,
			End:   3,
			Children: []*Node{
				{Tag: "A", Text: "a", Start: 0, End: 1},
				{Tag: "A", Text: "a", Start: 1, End: 2},
				{Tag: "A", Text: "a", Start: 2, End: 3},
			},
		}, root)

		for i := 1; i < len(root.Children); i++ {
			assert.Equal(t, root.Children[i-1].End, root.Children[i].Start)
		}
	})

	t.Run("value replaces the text of a node", func(t *testing.T) {
		p := assemble(t, `
.start Bool
        EXIT
.rule Bool
        NEW
        STRING "yes" no
        VALUE "true"
        JUMP done
no:
        STOREflag 0
        STRING "no" fail
        VALUE "false"
done:
        CAPTURE
        TAG #Bool
fail:
        RET
`)
		res, ctx := parse(t, p, "no")

		require.True(t, res.Success)
		assert.Equal(t, &Node{Tag: "Bool", Text: "false", Start: 0, End: 2}, ctx.Export(res.Root))
	})

	t.Run("untagged nodes get the empty tag", func(t *testing.T) {
		p := assemble(t, recognizer(`
        NEW
        ANY fail
        CAPTURE
`))
		res, ctx := parse(t, p, "z")

		require.True(t, res.Success)
		assert.Equal(t, EmptyTag, ctx.Arena().Tag(res.Root))
	})

	t.Run("aborted alternatives leave nothing behind", func(t *testing.T) {
		p := assemble(t, `
.start S
        EXIT
.rule S
        NEW
        PUSHpos
        PUSHmark
        CALL Word
        CHAR '!' alt
        POPpos
        POPpos
        JUMP done
alt:
        ABORT
        STOREpos
        STOREflag 0
        CALL Word
        IFFAIL fail
        CHAR '?' fail
done:
        CAPTURE
        TAG "S"
fail:
        RET
.rule Word
        NEW
        CHARMAP [a-z] wfail
        ZEROMORECHARMAP [a-z]
        CAPTURE
        TAG "Word"
        COMMIT -1
        RET
wfail:
        ABORT
        RET
`)
		res, ctx := parse(t, p, "hi?")

		require.True(t, res.Success)
		assert.Equal(t, &Node{
			Tag:   "S",
			Text:  "hi?",
			Start: 0,
			End:   3,
			Children: []*Node{
				{Tag: "Word", Text: "hi", Start: 0, End: 2},
			},
		}, ctx.Export(res.Root))
	})
}

func TestVMOpcodes(t *testing.T) {
	for _, test := range []struct {
		name    string
		body    string
		input   string
		success bool
		cursor  int
	}{
		{"any at end of input fails", "ANY fail", "", false, 0},
		{"char at end of input fails", "CHAR 'a' fail", "", false, 0},
		{"string shorter than literal fails", `STRING "abc" fail`, "ab", false, 0},
		{"charmap matches a member", "CHARMAP [a-c] fail", "b", true, 1},
		{"charmap rejects a non member", "CHARMAP [a-c] fail", "d", false, 0},
		{"negated class", "CHARMAP [^a-c] fail", "d", true, 1},
		{"not char accepts other bytes without consuming", "NOTCHAR 'x' fail", "y", true, 0},
		{"not char rejects the char", "NOTCHAR 'x' fail", "x", false, 0},
		{"not char succeeds at end of input", "NOTCHAR 'x' fail", "", true, 0},
		{"not charmap", "NOTCHARMAP [0-9] fail", "7", false, 0},
		{"not string accepts a different prefix", `NOTSTRING "ab" fail`, "ac", true, 0},
		{"not string rejects the literal", `NOTSTRING "ab" fail`, "abc", false, 0},
		{"not char any consumes one other byte", "NOTCHARANY 'x' fail", "yz", true, 1},
		{"not char any rejects the char", "NOTCHARANY 'x' fail", "x", false, 0},
		{"not char any fails at end of input", "NOTCHARANY 'x' fail", "", false, 0},
		{"optional char present", "OPTIONALCHAR 'a'", "ab", true, 1},
		{"optional char absent", "OPTIONALCHAR 'a'", "b", true, 0},
		{"optional charmap", "OPTIONALCHARMAP [ab]\nOPTIONALCHARMAP [ab]", "ba", true, 2},
		{"optional string present", `OPTIONALSTRING "ab"`, "abab", true, 2},
		{"optional string absent", `OPTIONALSTRING "ab"`, "a", true, 0},
		{"zero or more with no match", "ZEROMORECHARMAP [0-9]", "x", true, 0},
		{"zero or more stops at end of input", "ZEROMORECHARMAP [0-9]", "42", true, 2},
		{"store flag forces failure", "STOREflag 1", "", false, 0},
		{"if succ jumps when the flag is clear", "IFSUCC fail\nSTOREflag 1", "", true, 0},
		{"if fail jumps when the flag is set", "NOTCHAR 'a' next\nnext:\nIFFAIL fail\nSTOREflag 1", "a", false, 0},
		{"backtracking restores the cursor", "PUSHpos\nZEROMORECHARMAP [a-z]\nSTOREpos", "hello", true, 0},
		{"get pos restores without popping", "PUSHpos\nANY fail\nANY fail\nGETpos\nANY fail\nPOPpos", "abc", true, 1},
		{"escaped bytes", `STRING "\t\x41\n" fail`, "\tA\n", true, 3},
	} {
		t.Run(test.name, func(t *testing.T) {
			p := assemble(t, recognizer(test.body))
			res, _ := parse(t, p, test.input)
			assert.Equal(t, test.success, res.Success)
			if test.success {
				assert.Equal(t, test.cursor, res.Cursor)
			}
		})
	}
}

func TestVMBacktrackingRestoresExactly(t *testing.T) {
	p := assemble(t, recognizer(`
        PUSHpos
        ZEROMORECHARMAP [a-z]
        OPTIONALSTRING "--"
        ZEROMORECHARMAP [0-9]
        STOREpos
`))
	for _, input := range []string{"", "a", "abc--123", "--", "99 bottles"} {
		res, _ := parse(t, p, input)
		require.True(t, res.Success)
		assert.Equal(t, 0, res.Cursor, input)
	}
}

func TestVMResourceErrors(t *testing.T) {
	t.Run("unbounded recursion overflows the stack", func(t *testing.T) {
		p := assemble(t, `
.start R
        EXIT
.rule R
        CALL R
        RET
`)
		cfg := NewConfig()
		cfg.SetInt("vm.stack.max_depth", 8)
		ctx := NewContext([]byte("x"), cfg)
		defer ctx.Close()

		res, err := ctx.Parse(p)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrStackOverflow))
		assert.False(t, res.Success)
		assert.Equal(t, NoNode, res.Root)

		var rerr *RuntimeError
		require.True(t, errors.As(err, &rerr))
		assert.Equal(t, 1, rerr.PC)
		assert.Equal(t, "CALL 1", rerr.Op)
		assert.Equal(t, 8, ctx.Stats().MaxStackDepth)
	})

	t.Run("popping an empty stack underflows", func(t *testing.T) {
		p := assemble(t, recognizer("POPpos\nPOPpos"))
		ctx := NewContext(nil, nil)
		defer ctx.Close()

		_, err := ctx.Parse(p)
		assert.True(t, errors.Is(err, ErrStackUnderflow))
	})

	t.Run("running off the code of an unchecked program", func(t *testing.T) {
		for _, p := range []*Program{
			{Code: []Instruction{IExit{}, INotChar{Char: 'a', Fail: 0}}, Start: 1},
			{Code: []Instruction{IExit{}, IJump{Target: 9}}, Start: 1},
			{Start: 0},
		} {
			ctx := NewContext([]byte("b"), nil)
			res, err := ctx.Parse(p)
			ctx.Close()

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrBadTarget), "%v", err)
			assert.False(t, res.Success)

			var rerr *RuntimeError
			require.True(t, errors.As(err, &rerr))
			assert.Empty(t, rerr.Op)
		}
	})

	t.Run("a failed parse is not an error", func(t *testing.T) {
		p := assemble(t, literalGrammar)
		ctx := NewContext([]byte("zz"), nil)
		defer ctx.Close()

		res, err := ctx.Parse(p)
		require.NoError(t, err)
		assert.False(t, res.Success)
	})

	t.Run("the program is untouched by a runtime error", func(t *testing.T) {
		p := assemble(t, literalGrammar)
		before := p.PrettyString()

		cfg := NewConfig()
		cfg.SetInt("vm.stack.max_depth", 1)
		ctx := NewContext([]byte("ab"), cfg)
		defer ctx.Close()

		_, err := ctx.Parse(p)
		require.Error(t, err)
		assert.Equal(t, before, p.PrettyString())

		res, _ := parse(t, p, "ab")
		assert.True(t, res.Success)
	})
}

func TestVMMemoization(t *testing.T) {
	t.Run("second call at the same position is answered by lookup", func(t *testing.T) {
		p := assemble(t, memoGrammar)

		for _, test := range []struct {
			input   string
			memo    bool
			success bool
			calls   int
		}{
			{"abx", true, true, 1},
			{"aby", true, true, 1},
			{"aby", false, true, 2},
			{"ac", true, false, 1},
			{"ac", false, false, 2},
		} {
			cfg := NewConfig()
			cfg.SetBool("vm.memo.enabled", test.memo)
			ctx := NewContext([]byte(test.input), cfg)

			calls := 0
			entry := p.Rules["A"]
			ctx.SetTracer(TracerFunc(func(pc, _ int, _ Instruction) {
				if pc == entry {
					calls++
				}
			}))

			res, err := ctx.Parse(p)
			require.NoError(t, err)
			assert.Equal(t, test.success, res.Success, test.input)
			assert.Equal(t, test.calls, calls, "%s memo=%t", test.input, test.memo)

			ctx.Release(res.Root)
			ctx.Close()
		}
	})

	t.Run("counters report hits and misses", func(t *testing.T) {
		p := assemble(t, memoGrammar)
		ctx := NewContext([]byte("aby"), nil)
		defer ctx.Close()

		res, err := ctx.Parse(p)
		require.NoError(t, err)
		defer ctx.Release(res.Root)

		stats := ctx.Stats()
		assert.Equal(t, 1, stats.MemoHits)
		assert.Equal(t, 1, stats.MemoMisses)
		assert.Equal(t, 0, stats.MemoEvictions)
		assert.Greater(t, stats.Steps, 0)
	})

	t.Run("memoized trees match a derivation without the table", func(t *testing.T) {
		p := assemble(t, memoNodeGrammar)

		export := func(memo bool, input string) *Node {
			cfg := NewConfig()
			cfg.SetBool("vm.memo.enabled", memo)
			ctx := NewContext([]byte(input), cfg)
			defer ctx.Close()

			res, err := ctx.Parse(p)
			require.NoError(t, err)
			require.True(t, res.Success)
			defer ctx.Release(res.Root)
			return ctx.Export(res.Root)
		}

		for _, input := range []string{"abx", "aby"} {
			withMemo := export(true, input)
			withoutMemo := export(false, input)
			if diff := cmp.Diff(withoutMemo, withMemo); diff != "" {
				t.Errorf("%s: memoized tree differs (-want +got):\n%s", input, diff)
			}
		}

		assert.Equal(t, &Node{
			Tag:   "S",
			Text:  "aby",
			Start: 0,
			End:   3,
			Children: []*Node{
				{Tag: "A", Text: "ab", Start: 0, End: 2},
			},
		}, export(true, "aby"))
	})

	t.Run("rules that build nothing memoize no node", func(t *testing.T) {
		p := assemble(t, memoBareGrammar)

		export := func(memo bool) *Node {
			cfg := NewConfig()
			cfg.SetBool("vm.memo.enabled", memo)
			ctx := NewContext([]byte("way"), cfg)
			defer ctx.Close()

			res, err := ctx.Parse(p)
			require.NoError(t, err)
			require.True(t, res.Success)
			defer ctx.Release(res.Root)
			return ctx.Export(res.Root)
		}

		want := &Node{
			Tag:   "S",
			Text:  "way",
			Start: 0,
			End:   3,
			Children: []*Node{
				{Tag: "W", Text: "w", Start: 0, End: 1},
			},
		}
		assert.Equal(t, want, export(false))
		if diff := cmp.Diff(want, export(true)); diff != "" {
			t.Errorf("memoized tree differs (-want +got):\n%s", diff)
		}
	})

	t.Run("no node outlives the context", func(t *testing.T) {
		p := assemble(t, memoNodeGrammar)
		ctx := NewContext([]byte("aby"), nil)

		res, err := ctx.Parse(p)
		require.NoError(t, err)
		require.True(t, res.Success)

		root := ctx.Export(res.Root)
		ctx.Release(res.Root)
		ctx.Close()

		assert.Equal(t, 0, ctx.Arena().Live())
		assert.Equal(t, "S", root.Tag)
	})

	t.Run("retained roots survive close", func(t *testing.T) {
		p := assemble(t, literalGrammar)
		ctx := NewContext([]byte("ab"), nil)

		res, err := ctx.Parse(p)
		require.NoError(t, err)
		ctx.Close()

		assert.Equal(t, 1, ctx.Arena().Refs(res.Root))
		start, end := ctx.Arena().Range(res.Root)
		assert.Equal(t, 0, start)
		assert.Equal(t, 2, end)

		ctx.Release(res.Root)
		assert.Equal(t, 0, ctx.Arena().Live())
	})
}

func TestContextReset(t *testing.T) {
	p := assemble(t, memoGrammar)
	ctx := NewContext([]byte("aby"), nil)
	defer ctx.Close()

	var first Stats
	for i := 0; i < 3; i++ {
		ctx.Reset()
		res, err := ctx.Parse(p)
		require.NoError(t, err)
		require.True(t, res.Success)
		ctx.Release(res.Root)

		if i == 0 {
			first = ctx.Stats()
			continue
		}
		assert.Equal(t, first, ctx.Stats())
	}
}

func TestContextClose(t *testing.T) {
	p := assemble(t, memoNodeGrammar)
	ctx := NewContext([]byte("aby"), nil)

	res, err := ctx.Parse(p)
	require.NoError(t, err)
	ctx.Release(res.Root)

	ctx.Close()
	assert.NotPanics(t, ctx.Close)
	assert.NotPanics(t, ctx.Reset)
	assert.Equal(t, 0, ctx.Arena().Live())
	assert.Panics(t, func() { ctx.Parse(p) })
}

func TestProgramMatch(t *testing.T) {
	p := assemble(t, literalGrammar)

	node, cursor, err := p.Match([]byte("abz"))
	require.NoError(t, err)
	assert.Equal(t, 2, cursor)
	assert.Equal(t, "ab", node.Text)

	_, cursor, err = p.Match([]byte("b"))
	require.Error(t, err)
	assert.Equal(t, ParsingError{Cursor: cursor}, err)
}

const literalGrammar = `
.start G
        EXIT
.rule G
        NEW
        STRING "ab" fail
        CAPTURE
        TAG "AB"
fail:
        RET
`

// S <- A 'x' / A 'y', with A memoized
const memoGrammar = `
.start S
        EXIT
.rule S
        PUSHpos
        LOOKUP 0 a1
        PUSHpos
        CALL A
        MEMOIZE 0
a1:
        IFFAIL alt
        CHAR 'x' alt
        POPpos
        RET
alt:
        STOREpos
        STOREflag 0
        LOOKUP 0 a2
        PUSHpos
        CALL A
        MEMOIZE 0
a2:
        IFFAIL fail
        CHAR 'y' fail
fail:
        RET
.rule A
        CHAR 'a' afail
        CHAR 'b' afail
afail:
        RET
`

// same as memoGrammar, but A builds a node that becomes a child of S
const memoNodeGrammar = `
.start S
        EXIT
.rule S
        NEW
        PUSHpos
        PUSHmark
        LOOKUPNODE 0 -1 a1
        PUSHpos
        CALL A
        MEMOIZENODE 0
a1:
        IFFAIL alt
        CHAR 'x' alt
        POPpos
        POPpos
        JUMP done
alt:
        ABORT
        STOREpos
        STOREflag 0
        LOOKUPNODE 0 -1 a2
        PUSHpos
        CALL A
        MEMOIZENODE 0
a2:
        IFFAIL fail
        CHAR 'y' fail
done:
        CAPTURE
        TAG "S"
fail:
        RET
.rule A
        NEW
        CHAR 'a' afail
        CHAR 'b' afail
        CAPTURE
        TAG "A"
        COMMIT -1
        RET
afail:
        ABORT
        RET
`

// S <- W (A 'x' / A 'y'), W builds a node, the memoized A doesn't
const memoBareGrammar = `
.start S
        EXIT
.rule S
        NEW
        CALL W
        IFFAIL fail
        PUSHpos
        PUSHmark
        LOOKUPNODE 0 -1 a1
        PUSHpos
        CALL A
        MEMOIZENODE 0
a1:
        IFFAIL alt
        CHAR 'x' alt
        POPpos
        POPpos
        JUMP done
alt:
        ABORT
        STOREpos
        STOREflag 0
        LOOKUPNODE 0 -1 a2
        PUSHpos
        CALL A
        MEMOIZENODE 0
a2:
        IFFAIL fail
        CHAR 'y' fail
done:
        CAPTURE
        TAG "S"
fail:
        RET
.rule W
        NEW
        CHAR 'w' wfail
        CAPTURE
        TAG "W"
        COMMIT -1
        RET
wfail:
        ABORT
        RET
.rule A
        CHAR 'a' afail
afail:
        RET
`

// recognizer wraps body into a start rule, body may jump to `fail`
func recognizer(body string) string {
	return ".start G\n        EXIT\n.rule G\n" + body + "\nfail:\n        RET\n"
}

func assemble(t *testing.T, src string) *Program {
	t.Helper()
	p, err := Assemble(src)
	require.NoError(t, err)
	return p
}

// parse runs p with the default settings.  The context is closed and
// the root released when the test finishes.
func parse(t *testing.T, p *Program, input string) (Result, *Context) {
	t.Helper()
	ctx := NewContext([]byte(input), nil)
	res, err := ctx.Parse(p)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx.Release(res.Root)
		ctx.Close()
	})
	return res, ctx
}
