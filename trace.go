package nezvm

import (
	"context"
	"log/slog"
)

// Tracer is told about every instruction right before the machine
// dispatches it.  Tracers run inside the interpreter loop and must
// not touch the context that is being traced.
type Tracer interface {
	Trace(pc, cursor int, inst Instruction)
}

// TracerFunc adapts a plain function to the Tracer interface
type TracerFunc func(pc, cursor int, inst Instruction)

func (f TracerFunc) Trace(pc, cursor int, inst Instruction) { f(pc, cursor, inst) }

type logTracer struct {
	logger *slog.Logger
}

// NewLogTracer returns a tracer that writes one debug record per
// dispatched instruction.
func NewLogTracer(logger *slog.Logger) Tracer {
	return &logTracer{logger: logger}
}

func (t *logTracer) Trace(pc, cursor int, inst Instruction) {
	if !t.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	t.logger.LogAttrs(
		context.Background(),
		slog.LevelDebug,
		"dispatch",
		slog.Int("pc", pc),
		slog.Int("cursor", cursor),
		slog.String("op", formatInstruction(inst)),
	)
}
