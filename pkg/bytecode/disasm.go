package bytecode

import (
	"fmt"
	"strings"

	"github.com/kristofer/wisp/pkg/value"
)

// opColumnWidth is the width the opcode mnemonic is padded to, so the
// operands in a disassembly listing line up regardless of how long
// the mnemonic is.
const opColumnWidth = 18

// Disassemble renders every instruction in chunk under a "== name =="
// header, one line per instruction, for trace-mode or `disasm` output.
func Disassemble(chunk *Chunk, heap *value.Heap, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	for offset := 0; offset < len(chunk.Code); {
		line, next := DisassembleInstruction(chunk, heap, offset)
		b.WriteString(line)
		b.WriteByte('\n')
		offset = next
	}
	return b.String()
}

// DisassembleInstruction formats the instruction at offset and
// returns the offset of the instruction that follows it. An unknown
// opcode byte is reported but still advances by one, matching the
// VM's own soft-error skip behavior.
func DisassembleInstruction(chunk *Chunk, heap *value.Heap, offset int) (string, int) {
	pos := chunk.Lines[offset]
	op := Op(chunk.Code[offset])
	mnemonic := fmt.Sprintf("%-*s", opColumnWidth, op.String())

	switch op {
	case OpConstant, OpDefineGlobal, OpGetGlobal, OpSetGlobal:
		idx := int(chunk.Code[offset+1])
		return fmt.Sprintf("%4d:%-3d %04d %s%s", pos.Line, pos.Col, offset, mnemonic, constantOperand(chunk, heap, idx)), offset + 2
	case OpLongConstant, OpDefineGlobalLong, OpGetGlobalLong, OpSetGlobalLong:
		idx := chunk.ReadLong(offset + 1)
		return fmt.Sprintf("%4d:%-3d %04d %s%s", pos.Line, pos.Col, offset, mnemonic, constantOperand(chunk, heap, idx)), offset + 4
	case OpGetLocal, OpSetLocal:
		slot := int(chunk.Code[offset+1])
		return fmt.Sprintf("%4d:%-3d %04d %sslot %d", pos.Line, pos.Col, offset, mnemonic, slot), offset + 2
	case OpGetLocalLong, OpSetLocalLong:
		slot := chunk.ReadLong(offset + 1)
		return fmt.Sprintf("%4d:%-3d %04d %sslot %d", pos.Line, pos.Col, offset, mnemonic, slot), offset + 4
	case OpJump, OpJumpIfFalse:
		jump := chunk.ReadShort(offset + 1)
		target := offset + 3 + int(jump)
		return fmt.Sprintf("%4d:%-3d %04d %s%04d -> %04d", pos.Line, pos.Col, offset, mnemonic, offset, target), offset + 3
	case OpJumpBack:
		jump := chunk.ReadShort(offset + 1)
		target := offset + 3 - int(jump)
		return fmt.Sprintf("%4d:%-3d %04d %s%04d -> %04d", pos.Line, pos.Col, offset, mnemonic, offset, target), offset + 3
	default:
		n := op.operandBytes()
		return fmt.Sprintf("%4d:%-3d %04d %s", pos.Line, pos.Col, offset, strings.TrimRight(mnemonic, " ")), offset + 1 + n
	}
}

func constantOperand(chunk *Chunk, heap *value.Heap, idx int) string {
	if idx < 0 || idx >= len(chunk.Constants) {
		return fmt.Sprintf("%d (out of range)", idx)
	}
	return fmt.Sprintf("%d %s", idx, formatValue(chunk.Constants[idx], heap))
}

func formatValue(v value.Value, heap *value.Heap) string {
	switch v.Kind {
	case value.Null:
		return "null"
	case value.Bool:
		return fmt.Sprintf("%t", v.Bool)
	case value.Number:
		return fmt.Sprintf("%g", v.Num)
	case value.Obj:
		if heap == nil {
			return "<obj>"
		}
		return fmt.Sprintf("%q", heap.Get(v.ObjRef).Str)
	default:
		return "<?>"
	}
}
