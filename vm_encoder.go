package nezvm

import (
	"encoding/binary"
	"fmt"
)

var (
	encodeU16 = binary.LittleEndian.AppendUint16
	encodeU32 = binary.LittleEndian.AppendUint32
	encodeU64 = binary.LittleEndian.AppendUint64
	decodeU16 = binary.LittleEndian.Uint16
	decodeU32 = binary.LittleEndian.Uint32
	decodeU64 = binary.LittleEndian.Uint64
)

// EncodeProgram writes p in the binary format read by LoadProgram:
//
//	version      2 bytes
//	grammar file u32 length, bytes
//	rule table   u32 count, then per rule u32 length, name, u64 index
//	code length  u64
//	code         opcode byte followed by its little endian operands
//
// Jump targets are stored as offsets relative to the instruction
// that holds them.  The start rule is not part of the format, it is
// picked by name when the program is loaded.
func EncodeProgram(p *Program) ([]byte, error) {
	code := make([]byte, 0, 64+len(p.Code)*8)
	code = append(code, p.Version[0], p.Version[1])
	code = encodeU32(code, uint32(len(p.GrammarFile)))
	code = append(code, p.GrammarFile...)

	names := p.RuleNames()
	code = encodeU32(code, uint32(len(names)))
	for _, name := range names {
		code = encodeU32(code, uint32(len(name)))
		code = append(code, name...)
		code = encodeU64(code, uint64(p.Rules[name]))
	}

	code = encodeU64(code, uint64(len(p.Code)))
	for pc, instruction := range p.Code {
		var (
			op  = instruction.opcode()
			rel = func(target int) uint32 { return uint32(int32(target - pc)) }
		)
		code = append(code, op)

		switch ii := instruction.(type) {
		case IExit, IRet, IPushPos, IPushMark, IPopPos, IGetPos, IStorePos, INew, ICapture, IAbort:
			// no operands
		case IJump:
			code = encodeU32(code, rel(ii.Target))
		case ICall:
			code = encodeU32(code, rel(ii.Target))
		case IIfFail:
			code = encodeU32(code, rel(ii.Target))
		case IIfSucc:
			code = encodeU32(code, rel(ii.Target))
		case IAny:
			code = encodeU32(code, rel(ii.Fail))
		case IChar:
			code = encodeU32(code, uint32(ii.Char))
			code = encodeU32(code, rel(ii.Fail))
		case INotChar:
			code = encodeU32(code, uint32(ii.Char))
			code = encodeU32(code, rel(ii.Fail))
		case INotCharAny:
			code = encodeU32(code, uint32(ii.Char))
			code = encodeU32(code, rel(ii.Fail))
		case ICharMap:
			code = encodeSet(code, ii.Set)
			code = encodeU32(code, rel(ii.Fail))
		case INotCharMap:
			code = encodeSet(code, ii.Set)
			code = encodeU32(code, rel(ii.Fail))
		case IString:
			code = encodeString(code, ii.Str)
			code = encodeU32(code, rel(ii.Fail))
		case INotString:
			code = encodeString(code, ii.Str)
			code = encodeU32(code, rel(ii.Fail))
		case IStoreFlag:
			if ii.Value {
				code = encodeU32(code, 1)
			} else {
				code = encodeU32(code, 0)
			}
		case ILeftJoin:
			code = encodeU32(code, uint32(int32(ii.Index)))
		case ICommit:
			code = encodeU32(code, uint32(int32(ii.Index)))
		case ITag:
			code = encodeName(code, ii.Tag)
		case IValue:
			code = encodeName(code, ii.Value)
		case IOptionalChar:
			code = encodeU32(code, uint32(ii.Char))
		case IOptionalCharMap:
			code = encodeSet(code, ii.Set)
		case IZeroMoreCharMap:
			code = encodeSet(code, ii.Set)
		case IOptionalString:
			code = encodeString(code, ii.Str)
		case IMemoize:
			code = encodeU32(code, uint32(ii.MemoPoint))
		case IMemoizeNode:
			code = encodeU32(code, uint32(ii.MemoPoint))
		case ILookup:
			code = encodeU32(code, uint32(ii.MemoPoint))
			code = encodeU32(code, rel(ii.Target))
		case ILookupNode:
			code = encodeU32(code, uint32(ii.MemoPoint))
			code = encodeU32(code, uint32(int32(ii.Index)))
			code = encodeU32(code, rel(ii.Target))
		default:
			return nil, fmt.Errorf("instruction %d (%T): %w", pc, instruction, ErrBadOpcode)
		}
	}
	return code, nil
}

// encodeSet writes the members of a class, one u32 each
func encodeSet(code []byte, set *Charset) []byte {
	members := set.Members()
	code = encodeU16(code, uint16(len(members)))
	for _, m := range members {
		code = encodeU32(code, uint32(m))
	}
	return code
}

// encodeString writes a literal with one u32 per byte
func encodeString(code []byte, s []byte) []byte {
	code = encodeU16(code, uint16(len(s)))
	for _, c := range s {
		code = encodeU32(code, uint32(c))
	}
	return code
}

// encodeName writes tag and value names as raw bytes
func encodeName(code []byte, s string) []byte {
	code = encodeU16(code, uint16(len(s)))
	return append(code, s...)
}
