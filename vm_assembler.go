package nezvm

import (
	"fmt"
	"strconv"
	"strings"
)

// Assemble turns an assembly listing into a Program.  The syntax is
// the one written by Program.Format:
//
//	.grammar "math.nez"   ; optional, name of the source grammar
//	.start Expr           ; rule or label the parse starts at
//	.rule Expr            ; names the next instruction as a rule
//	loop:                 ; names the next instruction as a label
//	        CHAR 'a' fail
//	        CHARMAP [0-9a-f] fail
//	        STRING "ab\n" fail
//	        TAG "Number"
//
// Jump operands are label names or absolute instruction indexes.
// Mnemonics are case insensitive and `;` starts a comment.
func Assemble(src string) (*Program, error) {
	a := newAssembler()
	for i, line := range strings.Split(src, "\n") {
		if err := a.scanLine(i+1, line); err != nil {
			return nil, err
		}
	}
	return a.link()
}

var mnemonics = func() map[string]byte {
	m := make(map[string]byte, opCount)
	for op, name := range opNames {
		m[strings.ToUpper(name)] = byte(op)
	}
	return m
}()

type asmTokenKind int

const (
	asmTokenKind_Word asmTokenKind = iota
	asmTokenKind_Char
	asmTokenKind_String
	asmTokenKind_Class
)

type asmToken struct {
	kind asmTokenKind
	text string
	lit  []byte
	set  *Charset
}

type asmStatement struct {
	line int
	op   byte
	args []asmToken
}

type assembler struct {
	statements  []asmStatement
	labels      map[string]int
	rules       map[string]int
	start       string
	startLine   int
	grammarFile string
}

func newAssembler() *assembler {
	return &assembler{
		labels: map[string]int{},
		rules:  map[string]int{},
	}
}

func (a *assembler) errorf(line int, format string, args ...any) error {
	return &AsmError{Line: line, Message: fmt.Sprintf(format, args...)}
}

func (a *assembler) defineLabel(line int, name string) error {
	if name == "" {
		return a.errorf(line, "empty label")
	}
	if _, ok := a.labels[name]; ok {
		return a.errorf(line, "label `%s` defined twice", name)
	}
	a.labels[name] = len(a.statements)
	return nil
}

func (a *assembler) scanLine(line int, text string) error {
	tokens, err := tokenizeAsm(text)
	if err != nil {
		return a.errorf(line, "%s", err)
	}

	// any number of labels may prefix an instruction
	for len(tokens) > 0 && tokens[0].kind == asmTokenKind_Word && strings.HasSuffix(tokens[0].text, ":") {
		if err := a.defineLabel(line, strings.TrimSuffix(tokens[0].text, ":")); err != nil {
			return err
		}
		tokens = tokens[1:]
	}
	if len(tokens) == 0 {
		return nil
	}

	head := tokens[0]
	if head.kind != asmTokenKind_Word {
		return a.errorf(line, "expected an instruction, got `%s`", head.text)
	}
	args := tokens[1:]

	switch head.text {
	case ".rule":
		if len(args) != 1 || args[0].kind != asmTokenKind_Word {
			return a.errorf(line, ".rule expects a name")
		}
		name := args[0].text
		if err := a.defineLabel(line, name); err != nil {
			return err
		}
		a.rules[name] = len(a.statements)
		return nil

	case ".start":
		if len(args) != 1 || args[0].kind != asmTokenKind_Word {
			return a.errorf(line, ".start expects a label")
		}
		a.start, a.startLine = args[0].text, line
		return nil

	case ".grammar":
		if len(args) != 1 || args[0].kind != asmTokenKind_String {
			return a.errorf(line, ".grammar expects a string")
		}
		a.grammarFile = string(args[0].lit)
		return nil
	}

	op, ok := mnemonics[strings.ToUpper(head.text)]
	if !ok {
		return a.errorf(line, "unknown instruction `%s`", head.text)
	}
	a.statements = append(a.statements, asmStatement{line: line, op: op, args: args})
	return nil
}

// link resolves the labels once every statement has been read
func (a *assembler) link() (*Program, error) {
	code := make([]Instruction, 0, len(a.statements))
	for _, st := range a.statements {
		inst, err := a.build(st)
		if err != nil {
			return nil, err
		}
		code = append(code, inst)
	}

	start := 0
	if a.start != "" {
		idx, err := a.target(a.startLine, a.start)
		if err != nil {
			return nil, err
		}
		start = idx
	}

	p, err := NewProgram(code, start, a.rules)
	if err != nil {
		return nil, err
	}
	p.GrammarFile = a.grammarFile
	return p, nil
}

func (a *assembler) target(line int, name string) (int, error) {
	if idx, ok := a.labels[name]; ok {
		return idx, nil
	}
	if idx, err := strconv.Atoi(name); err == nil {
		return idx, nil
	}
	return 0, a.errorf(line, "undefined label `%s`", name)
}

// asmArgs hands out the operands of one statement in order
type asmArgs struct {
	a    *assembler
	st   asmStatement
	next int
	err  error
}

func (r *asmArgs) fail(format string, args ...any) {
	if r.err == nil {
		r.err = r.a.errorf(r.st.line, "%s: %s", opNames[r.st.op], fmt.Sprintf(format, args...))
	}
}

func (r *asmArgs) take(what string, kinds ...asmTokenKind) (asmToken, bool) {
	if r.err != nil {
		return asmToken{}, false
	}
	if r.next >= len(r.st.args) {
		r.fail("missing %s", what)
		return asmToken{}, false
	}
	tok := r.st.args[r.next]
	for _, k := range kinds {
		if tok.kind == k {
			r.next++
			return tok, true
		}
	}
	r.fail("expected %s, got `%s`", what, tok.text)
	return asmToken{}, false
}

func (r *asmArgs) target() int {
	tok, ok := r.take("jump target", asmTokenKind_Word)
	if !ok {
		return 0
	}
	idx, err := r.a.target(r.st.line, tok.text)
	if err != nil && r.err == nil {
		r.err = err
	}
	return idx
}

func (r *asmArgs) char() byte {
	tok, ok := r.take("character", asmTokenKind_Char)
	if !ok {
		return 0
	}
	return tok.lit[0]
}

func (r *asmArgs) set() *Charset {
	tok, ok := r.take("character class", asmTokenKind_Class)
	if !ok {
		return NewCharset()
	}
	return tok.set
}

func (r *asmArgs) str() []byte {
	tok, ok := r.take("string", asmTokenKind_String)
	if !ok {
		return nil
	}
	return tok.lit
}

// name accepts both quoted and bare names, so `TAG "Num"` and
// `TAG #Num` are the same
func (r *asmArgs) name() string {
	tok, ok := r.take("name", asmTokenKind_String, asmTokenKind_Word)
	if !ok {
		return ""
	}
	if tok.kind == asmTokenKind_String {
		return string(tok.lit)
	}
	return strings.TrimPrefix(tok.text, "#")
}

func (r *asmArgs) number() int {
	tok, ok := r.take("number", asmTokenKind_Word)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(tok.text)
	if err != nil {
		r.fail("expected number, got `%s`", tok.text)
	}
	return n
}

// optionalNumber returns fallback when the operand was left out
func (r *asmArgs) optionalNumber(fallback int) int {
	if r.next >= len(r.st.args) {
		return fallback
	}
	return r.number()
}

func (r *asmArgs) flag() bool {
	tok, ok := r.take("flag", asmTokenKind_Word)
	if !ok {
		return false
	}
	switch tok.text {
	case "1", "true":
		return true
	case "0", "false":
		return false
	}
	r.fail("expected 0 or 1, got `%s`", tok.text)
	return false
}

func (r *asmArgs) done() error {
	if r.err == nil && r.next < len(r.st.args) {
		r.fail("unexpected operand `%s`", r.st.args[r.next].text)
	}
	return r.err
}

func (a *assembler) build(st asmStatement) (Instruction, error) {
	var (
		r    = &asmArgs{a: a, st: st}
		inst Instruction
	)
	switch st.op {
	case opExit:
		inst = IExit{}
	case opJump:
		inst = IJump{Target: r.target()}
	case opCall:
		inst = ICall{Target: r.target()}
	case opRet:
		inst = IRet{}
	case opIfFail:
		inst = IIfFail{Target: r.target()}
	case opIfSucc:
		inst = IIfSucc{Target: r.target()}
	case opChar:
		c := r.char()
		inst = IChar{Char: c, Fail: r.target()}
	case opCharMap:
		s := r.set()
		inst = ICharMap{Set: s, Fail: r.target()}
	case opString:
		s := r.str()
		inst = IString{Str: s, Fail: r.target()}
	case opAny:
		inst = IAny{Fail: r.target()}
	case opPushPos:
		inst = IPushPos{}
	case opPushMark:
		inst = IPushMark{}
	case opPopPos:
		inst = IPopPos{}
	case opGetPos:
		inst = IGetPos{}
	case opStorePos:
		inst = IStorePos{}
	case opStoreFlag:
		inst = IStoreFlag{Value: r.flag()}
	case opNew:
		inst = INew{}
	case opLeftJoin:
		inst = ILeftJoin{Index: r.optionalNumber(0)}
	case opCapture:
		inst = ICapture{}
	case opCommit:
		inst = ICommit{Index: r.optionalNumber(AppendIndex)}
	case opAbort:
		inst = IAbort{}
	case opTag:
		inst = ITag{Tag: r.name()}
	case opValue:
		inst = IValue{Value: r.name()}
	case opNotChar:
		c := r.char()
		inst = INotChar{Char: c, Fail: r.target()}
	case opNotCharMap:
		s := r.set()
		inst = INotCharMap{Set: s, Fail: r.target()}
	case opNotString:
		s := r.str()
		inst = INotString{Str: s, Fail: r.target()}
	case opNotCharAny:
		c := r.char()
		inst = INotCharAny{Char: c, Fail: r.target()}
	case opOptionalChar:
		inst = IOptionalChar{Char: r.char()}
	case opOptionalCharMap:
		inst = IOptionalCharMap{Set: r.set()}
	case opOptionalString:
		inst = IOptionalString{Str: r.str()}
	case opZeroMoreCharMap:
		inst = IZeroMoreCharMap{Set: r.set()}
	case opMemoize:
		inst = IMemoize{MemoPoint: r.number()}
	case opMemoizeNode:
		inst = IMemoizeNode{MemoPoint: r.number()}
	case opLookup:
		mp := r.number()
		inst = ILookup{MemoPoint: mp, Target: r.target()}
	case opLookupNode:
		mp := r.number()
		idx := r.number()
		inst = ILookupNode{MemoPoint: mp, Index: idx, Target: r.target()}
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return inst, nil
}

// tokenizeAsm splits one line into words and literals, dropping the
// trailing comment
func tokenizeAsm(line string) ([]asmToken, error) {
	var tokens []asmToken
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == ',':
			i++

		case c == ';':
			return tokens, nil

		case c == '\'' || c == '"':
			end, err := closingQuote(line, i, c)
			if err != nil {
				return nil, err
			}
			raw := line[i : end+1]
			lit, err := unescapeAsm(line[i+1 : end])
			if err != nil {
				return nil, err
			}
			tok := asmToken{kind: asmTokenKind_String, text: raw, lit: lit}
			if c == '\'' {
				if len(lit) != 1 {
					return nil, fmt.Errorf("character literal %s must hold exactly one byte", raw)
				}
				tok.kind = asmTokenKind_Char
			}
			tokens = append(tokens, tok)
			i = end + 1

		case c == '[':
			end, err := closingQuote(line, i, ']')
			if err != nil {
				return nil, err
			}
			set, err := parseClass(line[i+1 : end])
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, asmToken{kind: asmTokenKind_Class, text: line[i : end+1], set: set})
			i = end + 1

		default:
			j := i
			for j < len(line) && !strings.ContainsRune(" \t\r,;", rune(line[j])) {
				j++
			}
			tokens = append(tokens, asmToken{kind: asmTokenKind_Word, text: line[i:j]})
			i = j
		}
	}
	return tokens, nil
}

// closingQuote finds the unescaped delimiter closing the literal that
// opens at line[start]
func closingQuote(line string, start int, delim byte) (int, error) {
	for i := start + 1; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case delim:
			return i, nil
		}
	}
	return 0, fmt.Errorf("unterminated literal %s", line[start:])
}

// nextEscaped reads one possibly escaped byte from s
func nextEscaped(s string) (byte, string, error) {
	if s[0] != '\\' {
		return s[0], s[1:], nil
	}
	if len(s) < 2 {
		return 0, "", fmt.Errorf("dangling escape")
	}
	switch s[1] {
	case 'n':
		return '\n', s[2:], nil
	case 'r':
		return '\r', s[2:], nil
	case 't':
		return '\t', s[2:], nil
	case '0':
		return 0, s[2:], nil
	case 'x':
		if len(s) < 4 {
			return 0, "", fmt.Errorf("short hex escape %s", s)
		}
		n, err := strconv.ParseUint(s[2:4], 16, 8)
		if err != nil {
			return 0, "", fmt.Errorf("bad hex escape %s", s[:4])
		}
		return byte(n), s[4:], nil
	}
	return s[1], s[2:], nil
}

func unescapeAsm(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for len(s) > 0 {
		b, rest, err := nextEscaped(s)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
		s = rest
	}
	return out, nil
}

// parseClass reads the body of a `[...]` class.  A leading `^`
// complements the class and `a-z` adds a range.
func parseClass(s string) (*Charset, error) {
	cs := NewCharset()
	negate := false
	if strings.HasPrefix(s, "^") {
		negate = true
		s = s[1:]
	}
	for len(s) > 0 {
		lo, rest, err := nextEscaped(s)
		if err != nil {
			return nil, err
		}
		s = rest
		if len(s) > 1 && s[0] == '-' {
			hi, rest, err := nextEscaped(s[1:])
			if err != nil {
				return nil, err
			}
			if hi < lo {
				return nil, fmt.Errorf("inverted range %s-%s", escapeClassByte(lo), escapeClassByte(hi))
			}
			cs.AddRange(lo, hi)
			s = rest
			continue
		}
		cs.Add(lo)
	}
	if negate {
		inv := NewCharset()
		for c := 0; c < 256; c++ {
			if !cs.Has(byte(c)) {
				inv.Add(byte(c))
			}
		}
		return inv, nil
	}
	return cs, nil
}
