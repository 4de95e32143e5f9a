package nezvm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type AsmFormatToken int

const (
	AsmFormatToken_None AsmFormatToken = iota
	AsmFormatToken_Comment
	AsmFormatToken_Label
	AsmFormatToken_Literal
	AsmFormatToken_Operator
	AsmFormatToken_Operand
)

// Program is a loaded instruction array plus the tables needed to
// run it.  A Program is never modified by the machine and can be
// shared by concurrent parses.
type Program struct {
	// Code holds the instructions.  Jump targets are absolute
	// indexes into this slice.
	Code []Instruction

	// Start is the index of the first instruction of the rule the
	// parse begins with
	Start int

	// Rules maps rule names to the index of their first instruction
	Rules map[string]int

	// MemoPoints is the number of distinct memo points referenced
	// by the code and sizes the memo table.
	MemoPoints int

	// GrammarFile is the name of the grammar the program was
	// compiled from, as recorded in the bytecode header.
	GrammarFile string

	// Version is the bytecode format version (major, minor)
	Version [2]byte
}

// NewProgram validates code and derives the memo point count from
// the instructions.
func NewProgram(code []Instruction, start int, rules map[string]int) (*Program, error) {
	p := &Program{Code: code, Start: start, Rules: rules}
	if p.Rules == nil {
		p.Rules = map[string]int{}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.MemoPoints = countMemoPoints(code)
	return p, nil
}

// Validate makes sure every jump target and rule entry point falls
// within the code, that instruction 0 is the EXIT the start rule
// returns to, and that the last instruction can't fall off the end.
func (p *Program) Validate() error {
	if len(p.Code) == 0 {
		return ErrEmptyProgram
	}
	inRange := func(i int) bool { return i >= 0 && i < len(p.Code) }
	if !inRange(p.Start) {
		return fmt.Errorf("start %d: %w", p.Start, ErrBadTarget)
	}
	for name, idx := range p.Rules {
		if !inRange(idx) {
			return fmt.Errorf("rule %s at %d: %w", name, idx, ErrBadTarget)
		}
	}
	for pc, inst := range p.Code {
		if inst == nil {
			return fmt.Errorf("instruction %d: %w", pc, ErrBadOpcode)
		}
		if !hasOperands(inst) {
			return fmt.Errorf("%s @ %d: %w", inst.Name(), pc, ErrBadOperand)
		}
		for _, target := range jumpTargets(inst) {
			if !inRange(target) {
				return fmt.Errorf("%s @ %d to %d: %w", inst.Name(), pc, target, ErrBadTarget)
			}
		}
	}
	if _, ok := p.Code[0].(IExit); !ok {
		return fmt.Errorf("%s @ 0 is not EXIT: %w", p.Code[0].Name(), ErrBadTarget)
	}
	last := len(p.Code) - 1
	if fallsThrough(p.Code[last]) {
		return fmt.Errorf("%s @ %d falls off the end: %w", p.Code[last].Name(), last, ErrBadTarget)
	}
	return nil
}

// fallsThrough reports whether inst can continue at the next index
func fallsThrough(inst Instruction) bool {
	switch inst.(type) {
	case IExit, IJump, IRet:
		return false
	}
	return true
}

// hasOperands reports whether class operands are present and memo
// points are not negative
func hasOperands(inst Instruction) bool {
	switch ii := inst.(type) {
	case ICharMap:
		return ii.Set != nil
	case INotCharMap:
		return ii.Set != nil
	case IOptionalCharMap:
		return ii.Set != nil
	case IZeroMoreCharMap:
		return ii.Set != nil
	case IMemoize:
		return ii.MemoPoint >= 0
	case IMemoizeNode:
		return ii.MemoPoint >= 0
	case ILookup:
		return ii.MemoPoint >= 0
	case ILookupNode:
		return ii.MemoPoint >= 0
	}
	return true
}

func countMemoPoints(code []Instruction) int {
	n := 0
	for _, inst := range code {
		mp := -1
		switch ii := inst.(type) {
		case IMemoize:
			mp = ii.MemoPoint
		case IMemoizeNode:
			mp = ii.MemoPoint
		case ILookup:
			mp = ii.MemoPoint
		case ILookupNode:
			mp = ii.MemoPoint
		}
		if mp+1 > n {
			n = mp + 1
		}
	}
	return n
}

// WithStart returns a shallow copy of the program that begins at the
// named rule.  The instruction array is shared.
func (p *Program) WithStart(rule string) (*Program, error) {
	idx, ok := p.Rules[rule]
	if !ok {
		return nil, fmt.Errorf("%s: %w", rule, ErrUnknownRule)
	}
	cp := *p
	cp.Start = idx
	return &cp, nil
}

// RuleNames returns the rule names ordered by their position
func (p *Program) RuleNames() []string {
	names := make([]string, 0, len(p.Rules))
	for name := range p.Rules {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := p.Rules[names[i]], p.Rules[names[j]]
		if a == b {
			return names[i] < names[j]
		}
		return a < b
	})
	return names
}

// Match runs the program over input with the default configuration
// and returns a copy of the tree it built.  Inputs the grammar
// rejects are reported with a ParsingError.
func (p *Program) Match(input []byte) (*Node, int, error) {
	ctx := NewContext(input, nil)
	defer ctx.Close()

	res, err := ctx.Parse(p)
	if err != nil {
		return nil, res.Cursor, err
	}
	if !res.Success {
		return nil, res.Cursor, ParsingError{Cursor: res.Cursor}
	}
	defer ctx.Release(res.Root)
	return ctx.Export(res.Root), res.Cursor, nil
}

func (p *Program) PrettyString() string {
	return p.Format(func(input string, _ AsmFormatToken) string {
		return input
	})
}

// Format writes the program as an assembly listing that Assemble
// can read back.
func (p *Program) Format(format FormatFunc[AsmFormatToken]) string {
	var (
		s      strings.Builder
		labels = p.labels()
		ruleAt = map[int][]string{}
	)
	for _, name := range p.RuleNames() {
		ruleAt[p.Rules[name]] = append(ruleAt[p.Rules[name]], name)
	}
	label := func(target int) string {
		return labels[target]
	}

	if p.GrammarFile != "" {
		s.WriteString(format(".grammar", AsmFormatToken_Operator))
		s.WriteString(" ")
		s.WriteString(format(`"`+escapeLiteral([]byte(p.GrammarFile))+`"`, AsmFormatToken_Literal))
		s.WriteString("\n")
	}
	s.WriteString(format(".start", AsmFormatToken_Operator))
	s.WriteString(" ")
	s.WriteString(format(labels[p.Start], AsmFormatToken_Label))
	s.WriteString("\n")

	for pc, inst := range p.Code {
		for _, name := range ruleAt[pc] {
			s.WriteString("\n")
			s.WriteString(format(fmt.Sprintf(";; %06d\n", pc), AsmFormatToken_Comment))
			s.WriteString(format(".rule", AsmFormatToken_Operator))
			s.WriteString(" ")
			s.WriteString(format(name, AsmFormatToken_Label))
			s.WriteString("\n")
		}
		if lb, ok := labels[pc]; ok && len(ruleAt[pc]) == 0 {
			s.WriteString(format(lb+":", AsmFormatToken_Label))
			s.WriteString("\n")
		}
		s.WriteString("        ")
		s.WriteString(format(inst.Name(), AsmFormatToken_Operator))
		for _, operand := range operands(inst, label) {
			s.WriteString(" ")
			s.WriteString(format(operand.text, operand.token))
		}
		s.WriteString("\n")
	}
	return s.String()
}

// labels names every address that is either a rule entry point, the
// start address or a jump target.
func (p *Program) labels() map[int]string {
	labels := map[int]string{}
	for _, name := range p.RuleNames() {
		if _, ok := labels[p.Rules[name]]; !ok {
			labels[p.Rules[name]] = name
		}
	}
	add := func(target int) {
		if _, ok := labels[target]; !ok {
			labels[target] = "L" + strconv.Itoa(target)
		}
	}
	add(p.Start)
	for _, inst := range p.Code {
		for _, target := range jumpTargets(inst) {
			add(target)
		}
	}
	return labels
}

type asmOperand struct {
	text  string
	token AsmFormatToken
}

// operands renders the operands of an instruction in the order the
// assembler expects them.  label turns jump targets into names.
func operands(inst Instruction, label func(int) string) []asmOperand {
	var (
		out    []asmOperand
		target = func(t int) { out = append(out, asmOperand{label(t), AsmFormatToken_Label}) }
		number = func(n int) { out = append(out, asmOperand{strconv.Itoa(n), AsmFormatToken_Operand}) }
		char   = func(c byte) { out = append(out, asmOperand{"'" + escapeByte(c) + "'", AsmFormatToken_Literal}) }
		str    = func(s []byte) { out = append(out, asmOperand{`"` + escapeLiteral(s) + `"`, AsmFormatToken_Literal}) }
		set    = func(cs *Charset) { out = append(out, asmOperand{cs.String(), AsmFormatToken_Literal}) }
	)
	switch ii := inst.(type) {
	case IJump:
		target(ii.Target)
	case ICall:
		target(ii.Target)
	case IIfFail:
		target(ii.Target)
	case IIfSucc:
		target(ii.Target)
	case IChar:
		char(ii.Char)
		target(ii.Fail)
	case ICharMap:
		set(ii.Set)
		target(ii.Fail)
	case IString:
		str(ii.Str)
		target(ii.Fail)
	case IAny:
		target(ii.Fail)
	case IStoreFlag:
		if ii.Value {
			number(1)
		} else {
			number(0)
		}
	case ILeftJoin:
		number(ii.Index)
	case ICommit:
		number(ii.Index)
	case ITag:
		str([]byte(ii.Tag))
	case IValue:
		str([]byte(ii.Value))
	case INotChar:
		char(ii.Char)
		target(ii.Fail)
	case INotCharMap:
		set(ii.Set)
		target(ii.Fail)
	case INotString:
		str(ii.Str)
		target(ii.Fail)
	case INotCharAny:
		char(ii.Char)
		target(ii.Fail)
	case IOptionalChar:
		char(ii.Char)
	case IOptionalCharMap:
		set(ii.Set)
	case IOptionalString:
		str(ii.Str)
	case IZeroMoreCharMap:
		set(ii.Set)
	case IMemoize:
		number(ii.MemoPoint)
	case IMemoizeNode:
		number(ii.MemoPoint)
	case ILookup:
		number(ii.MemoPoint)
		target(ii.Target)
	case ILookupNode:
		number(ii.MemoPoint)
		number(ii.Index)
		target(ii.Target)
	}
	return out
}

// formatInstruction renders a single instruction with numeric jump
// targets, for traces and error messages.
func formatInstruction(inst Instruction) string {
	var s strings.Builder
	s.WriteString(inst.Name())
	for _, operand := range operands(inst, strconv.Itoa) {
		s.WriteString(" ")
		s.WriteString(operand.text)
	}
	return s.String()
}
