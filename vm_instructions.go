package nezvm

// Opcodes as they appear in the binary program format.  The order
// is part of the format and must not change.
const (
	opExit byte = iota
	opJump
	opCall
	opRet
	opIfFail
	opIfSucc
	opChar
	opCharMap
	opString
	opAny
	opPushPos
	opPushMark
	opPopPos
	opGetPos
	opStorePos
	opStoreFlag
	opNew
	opLeftJoin
	opCapture
	opCommit
	opAbort
	opTag
	opValue
	opNotChar
	opNotCharMap
	opNotString
	opNotCharAny
	opOptionalChar
	opOptionalCharMap
	opOptionalString
	opZeroMoreCharMap
	opMemoize
	opLookup
	opMemoizeNode
	opLookupNode

	opCount
)

var opNames = [opCount]string{
	opExit:            "EXIT",
	opJump:            "JUMP",
	opCall:            "CALL",
	opRet:             "RET",
	opIfFail:          "IFFAIL",
	opIfSucc:          "IFSUCC",
	opChar:            "CHAR",
	opCharMap:         "CHARMAP",
	opString:          "STRING",
	opAny:             "ANY",
	opPushPos:         "PUSHpos",
	opPushMark:        "PUSHmark",
	opPopPos:          "POPpos",
	opGetPos:          "GETpos",
	opStorePos:        "STOREpos",
	opStoreFlag:       "STOREflag",
	opNew:             "NEW",
	opLeftJoin:        "LEFTJOIN",
	opCapture:         "CAPTURE",
	opCommit:          "COMMIT",
	opAbort:           "ABORT",
	opTag:             "TAG",
	opValue:           "VALUE",
	opNotChar:         "NOTCHAR",
	opNotCharMap:      "NOTCHARMAP",
	opNotString:       "NOTSTRING",
	opNotCharAny:      "NOTCHARANY",
	opOptionalChar:    "OPTIONALCHAR",
	opOptionalCharMap: "OPTIONALCHARMAP",
	opOptionalString:  "OPTIONALSTRING",
	opZeroMoreCharMap: "ZEROMORECHARMAP",
	opMemoize:         "MEMOIZE",
	opLookup:          "LOOKUP",
	opMemoizeNode:     "MEMOIZENODE",
	opLookupNode:      "LOOKUPNODE",
}

// AppendIndex is the child index that tells the log to append a node
// after the last occupied slot instead of writing to a fixed one.
const AppendIndex = -1

// Instruction is a single decoded VM operation.  Instructions are
// values and never change after a program is loaded, so a program
// can be shared by any number of concurrent parses.
type Instruction interface {
	// Name returns the mnemonic of the instruction
	Name() string

	// opcode returns the byte the instruction is encoded with
	opcode() byte
}

// IExit stops the machine.  On success the whole log is committed
// into the root node, on failure the log is discarded.
type IExit struct{}

func (IExit) Name() string { return opNames[opExit] }
func (IExit) opcode() byte { return opExit }

type IJump struct{ Target int }

func (IJump) Name() string { return opNames[opJump] }
func (IJump) opcode() byte { return opJump }

// ICall pushes the address of the next instruction and transfers
// control to Target.
type ICall struct{ Target int }

func (ICall) Name() string { return opNames[opCall] }
func (ICall) opcode() byte { return opCall }

type IRet struct{}

func (IRet) Name() string { return opNames[opRet] }
func (IRet) opcode() byte { return opRet }

type IIfFail struct{ Target int }

func (IIfFail) Name() string { return opNames[opIfFail] }
func (IIfFail) opcode() byte { return opIfFail }

type IIfSucc struct{ Target int }

func (IIfSucc) Name() string { return opNames[opIfSucc] }
func (IIfSucc) opcode() byte { return opIfSucc }

// IChar consumes Char or sets the fail flag and jumps to Fail.
type IChar struct {
	Char byte
	Fail int
}

func (IChar) Name() string { return opNames[opChar] }
func (IChar) opcode() byte { return opChar }

type ICharMap struct {
	Set  *Charset
	Fail int
}

func (ICharMap) Name() string { return opNames[opCharMap] }
func (ICharMap) opcode() byte { return opCharMap }

type IString struct {
	Str  []byte
	Fail int
}

func (IString) Name() string { return opNames[opString] }
func (IString) opcode() byte { return opString }

// IAny consumes one byte, failing only at the end of the input.
type IAny struct{ Fail int }

func (IAny) Name() string { return opNames[opAny] }
func (IAny) opcode() byte { return opAny }

type IPushPos struct{}

func (IPushPos) Name() string { return opNames[opPushPos] }
func (IPushPos) opcode() byte { return opPushPos }

type IPushMark struct{}

func (IPushMark) Name() string { return opNames[opPushMark] }
func (IPushMark) opcode() byte { return opPushMark }

type IPopPos struct{}

func (IPopPos) Name() string { return opNames[opPopPos] }
func (IPopPos) opcode() byte { return opPopPos }

// IGetPos restores the cursor saved on top of the stack without
// popping it, so the same position can be restored again later.
type IGetPos struct{}

func (IGetPos) Name() string { return opNames[opGetPos] }
func (IGetPos) opcode() byte { return opGetPos }

type IStorePos struct{}

func (IStorePos) Name() string { return opNames[opStorePos] }
func (IStorePos) opcode() byte { return opStorePos }

type IStoreFlag struct{ Value bool }

func (IStoreFlag) Name() string { return opNames[opStoreFlag] }
func (IStoreFlag) opcode() byte { return opStoreFlag }

// INew saves a log mark on the stack and records where the node
// under construction starts.
type INew struct{}

func (INew) Name() string { return opNames[opNew] }
func (INew) opcode() byte { return opNew }

// ILeftJoin closes the node under construction and starts a new one
// holding it at the child slot Index.
type ILeftJoin struct{ Index int }

func (ILeftJoin) Name() string { return opNames[opLeftJoin] }
func (ILeftJoin) opcode() byte { return opLeftJoin }

type ICapture struct{}

func (ICapture) Name() string { return opNames[opCapture] }
func (ICapture) opcode() byte { return opCapture }

// ICommit pops the mark saved by INew, folds the log since then into
// a node and links it into the parent at Index.
type ICommit struct{ Index int }

func (ICommit) Name() string { return opNames[opCommit] }
func (ICommit) opcode() byte { return opCommit }

type IAbort struct{}

func (IAbort) Name() string { return opNames[opAbort] }
func (IAbort) opcode() byte { return opAbort }

type ITag struct{ Tag string }

func (ITag) Name() string { return opNames[opTag] }
func (ITag) opcode() byte { return opTag }

type IValue struct{ Value string }

func (IValue) Name() string { return opNames[opValue] }
func (IValue) opcode() byte { return opValue }

type INotChar struct {
	Char byte
	Fail int
}

func (INotChar) Name() string { return opNames[opNotChar] }
func (INotChar) opcode() byte { return opNotChar }

type INotCharMap struct {
	Set  *Charset
	Fail int
}

func (INotCharMap) Name() string { return opNames[opNotCharMap] }
func (INotCharMap) opcode() byte { return opNotCharMap }

type INotString struct {
	Str  []byte
	Fail int
}

func (INotString) Name() string { return opNames[opNotString] }
func (INotString) opcode() byte { return opNotString }

// INotCharAny is the fused form of `!c .`: it fails when the input
// is over or when the byte under the cursor is Char, and consumes
// that byte otherwise.  It is the only NOT instruction that moves
// the cursor.
type INotCharAny struct {
	Char byte
	Fail int
}

func (INotCharAny) Name() string { return opNames[opNotCharAny] }
func (INotCharAny) opcode() byte { return opNotCharAny }

type IOptionalChar struct{ Char byte }

func (IOptionalChar) Name() string { return opNames[opOptionalChar] }
func (IOptionalChar) opcode() byte { return opOptionalChar }

type IOptionalCharMap struct{ Set *Charset }

func (IOptionalCharMap) Name() string { return opNames[opOptionalCharMap] }
func (IOptionalCharMap) opcode() byte { return opOptionalCharMap }

type IOptionalString struct{ Str []byte }

func (IOptionalString) Name() string { return opNames[opOptionalString] }
func (IOptionalString) opcode() byte { return opOptionalString }

type IZeroMoreCharMap struct{ Set *Charset }

func (IZeroMoreCharMap) Name() string { return opNames[opZeroMoreCharMap] }
func (IZeroMoreCharMap) opcode() byte { return opZeroMoreCharMap }

// IMemoize pops the position saved before a rule call and records
// how much the rule consumed from there.
type IMemoize struct{ MemoPoint int }

func (IMemoize) Name() string { return opNames[opMemoize] }
func (IMemoize) opcode() byte { return opMemoize }

// ILookup answers a rule call from the memo table.  On a hit the
// cursor moves past the recorded match, the fail flag takes the
// recorded outcome and control jumps to Target, skipping the call.
// On a miss execution falls through into the call.
type ILookup struct {
	MemoPoint int
	Target    int
}

func (ILookup) Name() string { return opNames[opLookup] }
func (ILookup) opcode() byte { return opLookup }

// IMemoizeNode is IMemoize for rules that build a node: the most
// recently committed node is stored with the outcome.
type IMemoizeNode struct{ MemoPoint int }

func (IMemoizeNode) Name() string { return opNames[opMemoizeNode] }
func (IMemoizeNode) opcode() byte { return opMemoizeNode }

// ILookupNode is ILookup for rules that build a node: a successful
// hit links the stored node at Index as if the rule had committed it.
type ILookupNode struct {
	MemoPoint int
	Index     int
	Target    int
}

func (ILookupNode) Name() string { return opNames[opLookupNode] }
func (ILookupNode) opcode() byte { return opLookupNode }

// jumpTargets returns every code address an instruction may
// transfer control to.  Used to validate loaded programs.
func jumpTargets(inst Instruction) []int {
	switch ii := inst.(type) {
	case IJump:
		return []int{ii.Target}
	case ICall:
		return []int{ii.Target}
	case IIfFail:
		return []int{ii.Target}
	case IIfSucc:
		return []int{ii.Target}
	case IChar:
		return []int{ii.Fail}
	case ICharMap:
		return []int{ii.Fail}
	case IString:
		return []int{ii.Fail}
	case IAny:
		return []int{ii.Fail}
	case INotChar:
		return []int{ii.Fail}
	case INotCharMap:
		return []int{ii.Fail}
	case INotString:
		return []int{ii.Fail}
	case INotCharAny:
		return []int{ii.Fail}
	case ILookup:
		return []int{ii.Target}
	case ILookupNode:
		return []int{ii.Target}
	}
	return nil
}
