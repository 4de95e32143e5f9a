package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/clarete/nezvm"
)

var (
	tagColor      = color.New(color.FgBlue, color.Bold)
	literalColor  = color.New(color.FgGreen)
	rangeColor    = color.New(color.FgHiBlack)
	commentColor  = color.New(color.FgHiBlack)
	labelColor    = color.New(color.FgYellow)
	operatorColor = color.New(color.FgCyan, color.Bold)
	operandColor  = color.New(color.FgMagenta)
	errorColor    = color.New(color.FgRed, color.Bold)
)

type highlighter struct {
	enabled bool
}

// newHighlighter decides whether output gets colors.  In auto mode
// colors are used when stdout is a terminal and NO_COLOR is unset.
func newHighlighter(mode string) *highlighter {
	enabled := false
	switch mode {
	case "always":
		enabled = true
	case "never":
		enabled = false
	default:
		fd := os.Stdout.Fd()
		enabled = os.Getenv("NO_COLOR") == "" &&
			(isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd))
	}
	// fatih/color disables itself for non terminals, which would
	// undo `-color always`
	color.NoColor = !enabled
	return &highlighter{enabled: enabled}
}

func (h *highlighter) paint(c *color.Color, s string) string {
	if !h.enabled {
		return s
	}
	return c.Sprint(s)
}

func (h *highlighter) err(s string) string { return h.paint(errorColor, s) }

func (h *highlighter) dim(s string) string { return h.paint(rangeColor, s) }

func (h *highlighter) tree(input string, token nezvm.FormatToken) string {
	switch token {
	case nezvm.FormatToken_Tag:
		return h.paint(tagColor, input)
	case nezvm.FormatToken_Literal:
		return h.paint(literalColor, input)
	case nezvm.FormatToken_Range:
		return h.paint(rangeColor, input)
	default:
		return input
	}
}

func (h *highlighter) asm(input string, token nezvm.AsmFormatToken) string {
	switch token {
	case nezvm.AsmFormatToken_Comment:
		return h.paint(commentColor, input)
	case nezvm.AsmFormatToken_Label:
		return h.paint(labelColor, input)
	case nezvm.AsmFormatToken_Literal:
		return h.paint(literalColor, input)
	case nezvm.AsmFormatToken_Operator:
		return h.paint(operatorColor, input)
	case nezvm.AsmFormatToken_Operand:
		return h.paint(operandColor, input)
	default:
		return input
	}
}
