package nezvm

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogTracer(t *testing.T) {
	t.Run("one record per dispatched instruction", func(t *testing.T) {
		var out bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))

		p := assemble(t, literalGrammar)
		ctx := NewContext([]byte("ab"), nil)
		defer ctx.Close()
		ctx.SetTracer(NewLogTracer(logger))

		res, err := ctx.Parse(p)
		require.NoError(t, err)
		defer ctx.Release(res.Root)

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		assert.Len(t, lines, ctx.Stats().Steps)
		assert.Contains(t, lines[0], "msg=dispatch")
		assert.Contains(t, lines[0], "pc=1")
		assert.Contains(t, lines[0], "op=NEW")
		assert.Contains(t, lines[1], `op="STRING \"ab\" 5"`)
		assert.Contains(t, lines[len(lines)-1], "cursor=2")
	})

	t.Run("nothing is written above the debug level", func(t *testing.T) {
		var out bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelInfo}))

		_, _, err := matchTraced(t, literalGrammar, "ab", NewLogTracer(logger))
		require.NoError(t, err)
		assert.Empty(t, out.String())
	})

	t.Run("tracer funcs see pc and cursor", func(t *testing.T) {
		var pcs []int
		tracer := TracerFunc(func(pc, cursor int, inst Instruction) {
			pcs = append(pcs, pc)
		})
		res, steps, err := matchTraced(t, literalGrammar, "ab", tracer)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, []int{1, 2, 3, 4, 5, 0}, pcs)
		assert.Equal(t, len(pcs), steps)
	})
}

func matchTraced(t *testing.T, src, input string, tracer Tracer) (Result, int, error) {
	t.Helper()
	ctx := NewContext([]byte(input), nil)
	defer ctx.Close()
	ctx.SetTracer(tracer)

	res, err := ctx.Parse(assemble(t, src))
	ctx.Release(res.Root)
	return res, ctx.Stats().Steps, err
}
