package nezvm

import (
	"fmt"
	"os"
)

// LoadProgramFile reads a compiled grammar from disk.  See
// LoadProgram for how startRule is used.
func LoadProgramFile(path, startRule string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadProgram(data, startRule)
}

// LoadProgram decodes the output of EncodeProgram.  The parse starts
// at startRule, or at the first rule of the table when startRule is
// empty.  Relative jumps are resolved into absolute indexes and the
// result is validated, so a program returned without error is safe
// to run.
func LoadProgram(data []byte, startRule string) (*Program, error) {
	r := &programReader{data: data}

	var version [2]byte
	version[0] = r.u8()
	version[1] = r.u8()
	grammarFile := string(r.bytes(int(r.u32())))

	var (
		rules     = map[string]int{}
		firstRule = ""
		ruleCount = int(r.u32())
	)
	for i := 0; i < ruleCount && r.err == nil; i++ {
		name := string(r.bytes(int(r.u32())))
		index := int(r.u64())
		if i == 0 {
			firstRule = name
		}
		rules[name] = index
	}

	length := r.u64()
	if r.err != nil {
		return nil, r.fail(r.err)
	}
	// every instruction takes at least its opcode byte
	if length > uint64(len(data)-r.pos) {
		return nil, r.fail(fmt.Errorf("%d instructions: %w", length, ErrTruncated))
	}

	code := make([]Instruction, 0, int(length))
	for pc := 0; pc < int(length); pc++ {
		inst, err := r.instruction(pc)
		if err != nil {
			return nil, r.fail(err)
		}
		code = append(code, inst)
	}

	start := 0
	switch {
	case startRule != "":
		idx, ok := rules[startRule]
		if !ok {
			return nil, r.fail(fmt.Errorf("%s: %w", startRule, ErrUnknownRule))
		}
		start = idx
	case firstRule != "":
		start = rules[firstRule]
	}

	p, err := NewProgram(code, start, rules)
	if err != nil {
		return nil, r.fail(err)
	}
	p.GrammarFile = grammarFile
	p.Version = version
	return p, nil
}

// programReader decodes little endian values.  The first error sticks
// and every read after it returns zero values.
type programReader struct {
	data []byte
	pos  int
	err  error
}

func (r *programReader) fail(err error) error {
	return &LoadError{Err: err, Offset: r.pos}
}

func (r *programReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.data)-r.pos {
		r.err = ErrTruncated
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *programReader) u8() byte {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *programReader) u16() uint16 {
	if b := r.take(2); b != nil {
		return decodeU16(b)
	}
	return 0
}

func (r *programReader) u32() uint32 {
	if b := r.take(4); b != nil {
		return decodeU32(b)
	}
	return 0
}

func (r *programReader) u64() uint64 {
	if b := r.take(8); b != nil {
		return decodeU64(b)
	}
	return 0
}

func (r *programReader) bytes(n int) []byte {
	b := r.take(n)
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// jump reads a relative offset and turns it into an absolute index
func (r *programReader) jump(pc int) int {
	return pc + int(int32(r.u32()))
}

func (r *programReader) char() byte {
	c := r.u32()
	if c > 0xff && r.err == nil {
		r.err = fmt.Errorf("character %d doesn't fit a byte: %w", c, ErrBadOperand)
	}
	return byte(c)
}

func (r *programReader) set() *Charset {
	cs := NewCharset()
	n := int(r.u16())
	for i := 0; i < n; i++ {
		cs.Add(r.char())
	}
	return cs
}

func (r *programReader) str() []byte {
	n := int(r.u16())
	s := make([]byte, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		s = append(s, r.char())
	}
	return s
}

func (r *programReader) name() string {
	return string(r.bytes(int(r.u16())))
}

func (r *programReader) instruction(pc int) (Instruction, error) {
	var inst Instruction

	switch op := r.u8(); op {
	case opExit:
		inst = IExit{}
	case opJump:
		inst = IJump{Target: r.jump(pc)}
	case opCall:
		inst = ICall{Target: r.jump(pc)}
	case opRet:
		inst = IRet{}
	case opIfFail:
		inst = IIfFail{Target: r.jump(pc)}
	case opIfSucc:
		inst = IIfSucc{Target: r.jump(pc)}
	case opChar:
		c := r.char()
		inst = IChar{Char: c, Fail: r.jump(pc)}
	case opCharMap:
		s := r.set()
		inst = ICharMap{Set: s, Fail: r.jump(pc)}
	case opString:
		s := r.str()
		inst = IString{Str: s, Fail: r.jump(pc)}
	case opAny:
		inst = IAny{Fail: r.jump(pc)}
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
		inst = IStoreFlag{Value: r.u32() != 0}
	case opNew:
		inst = INew{}
	case opLeftJoin:
		inst = ILeftJoin{Index: int(int32(r.u32()))}
	case opCapture:
		inst = ICapture{}
	case opCommit:
		inst = ICommit{Index: int(int32(r.u32()))}
	case opAbort:
		inst = IAbort{}
	case opTag:
		inst = ITag{Tag: r.name()}
	case opValue:
		inst = IValue{Value: r.name()}
	case opNotChar:
		c := r.char()
		inst = INotChar{Char: c, Fail: r.jump(pc)}
	case opNotCharMap:
		s := r.set()
		inst = INotCharMap{Set: s, Fail: r.jump(pc)}
	case opNotString:
		s := r.str()
		inst = INotString{Str: s, Fail: r.jump(pc)}
	case opNotCharAny:
		c := r.char()
		inst = INotCharAny{Char: c, Fail: r.jump(pc)}
	case opOptionalChar:
		inst = IOptionalChar{Char: r.char()}
	case opOptionalCharMap:
		inst = IOptionalCharMap{Set: r.set()}
	case opOptionalString:
		inst = IOptionalString{Str: r.str()}
	case opZeroMoreCharMap:
		inst = IZeroMoreCharMap{Set: r.set()}
	case opMemoize:
		inst = IMemoize{MemoPoint: int(r.u32())}
	case opLookup:
		mp := int(r.u32())
		inst = ILookup{MemoPoint: mp, Target: r.jump(pc)}
	case opMemoizeNode:
		inst = IMemoizeNode{MemoPoint: int(r.u32())}
	case opLookupNode:
		mp := int(r.u32())
		idx := int(int32(r.u32()))
		inst = ILookupNode{MemoPoint: mp, Index: idx, Target: r.jump(pc)}
	default:
		if r.err == nil {
			return nil, fmt.Errorf("opcode 0x%02x at instruction %d: %w", op, pc, ErrBadOpcode)
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return inst, nil
}
