package nezvm

import (
	"errors"
	"fmt"
)

var (
	ErrStackOverflow  = errors.New("backtracking stack overflow")
	ErrStackUnderflow = errors.New("backtracking stack underflow")
	ErrBadOpcode      = errors.New("unknown opcode")
	ErrBadTarget      = errors.New("jump target out of range")
	ErrBadOperand     = errors.New("invalid operand")
	ErrTruncated      = errors.New("unexpected end of bytecode")
	ErrUnknownRule    = errors.New("unknown rule")
	ErrEmptyProgram   = errors.New("program has no instructions")
)

// RuntimeError is a resource error that stopped a parse before it
// reached EXIT.  It is never used for inputs the grammar rejects,
// those are reported through Result.Success.
type RuntimeError struct {
	Err    error
	PC     int
	Cursor int
	Op     string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error @ pc %d cursor %d: %s: %v", e.PC, e.Cursor, e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// LoadError is returned when a binary program can't be turned into
// a valid instruction array.
type LoadError struct {
	Err    error
	Offset int
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load error @ byte %d: %v", e.Offset, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// AsmError points at the line of an assembly listing that couldn't
// be assembled.
type AsmError struct {
	Line    int
	Message string
}

func (e *AsmError) Error() string {
	return fmt.Sprintf("asm error @ line %d: %s", e.Line, e.Message)
}

// ParsingError is returned by Program.Match when the grammar rejects
// the input
type ParsingError struct {
	Cursor int
}

func (e ParsingError) Error() string {
	return fmt.Sprintf("no match @ %d", e.Cursor)
}
