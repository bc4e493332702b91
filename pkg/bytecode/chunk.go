package bytecode

import (
	"fmt"

	"github.com/kristofer/wisp/pkg/lexer"
	"github.com/kristofer/wisp/pkg/value"
)

// maxShortIndex is the largest index the one-byte short opcode
// variants can address; beyond it the compiler must use the
// three-byte long variant.
const maxShortIndex = 0xFF

// maxJumpOffset is the largest offset a 16-bit jump operand can hold.
const maxJumpOffset = 0xFFFF

// Chunk is an append-only bytecode buffer: the instruction stream,
// its constant pool, the handles of every string constant interned
// through MakeString (variable names and string literals), and a line
// table with one entry per code byte so any instruction's source
// position is recoverable.
type Chunk struct {
	Code      []byte
	Constants []value.Value
	Strings   []value.ObjRef
	Lines     []lexer.Line
}

// New returns an empty chunk.
func New() *Chunk {
	return &Chunk{}
}

// Push appends one raw byte and its source line to the chunk.
func (c *Chunk) Push(b byte, line lexer.Line) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// PushOp appends an opcode byte.
func (c *Chunk) PushOp(op Op, line lexer.Line) {
	c.Push(byte(op), line)
}

// MakeConstant appends v to the constant pool and returns its index.
func (c *Chunk) MakeConstant(v value.Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// MakeString interns s on heap and appends the resulting Obj value to
// the constant pool, recording the handle in Strings as well so
// callers such as tests can enumerate every string a chunk interned.
func (c *Chunk) MakeString(heap *value.Heap, s string) int {
	ref := heap.InternString(s)
	c.Strings = append(c.Strings, ref)
	return c.MakeConstant(value.ObjValue(ref))
}

// PushIndexed emits shortOp followed by one operand byte when id fits
// in a byte, otherwise longOp followed by a big-endian 24-bit operand.
// The same short/long pattern is used for constant-pool indices,
// global-name indices, and local stack slots alike.
func (c *Chunk) PushIndexed(id int, line lexer.Line, shortOp, longOp Op) {
	if id <= maxShortIndex {
		c.PushOp(shortOp, line)
		c.Push(byte(id), line)
		return
	}
	c.PushOp(longOp, line)
	c.Push(byte(id>>16), line)
	c.Push(byte(id>>8), line)
	c.Push(byte(id), line)
}

// EmitJump writes op followed by a two-byte placeholder offset and
// returns the offset of the first placeholder byte, to be filled in
// later by PatchJump once the jump target is known.
func (c *Chunk) EmitJump(op Op, line lexer.Line) int {
	c.PushOp(op, line)
	c.Push(0xFF, line)
	c.Push(0xFF, line)
	return len(c.Code) - 2
}

// PatchJump sets the placeholder at offset to the distance between
// the instruction following the jump's operand and the chunk's
// current end (the jump's target).
func (c *Chunk) PatchJump(offset int) error {
	jump := len(c.Code) - offset - 2
	if jump > maxJumpOffset {
		return fmt.Errorf("Jump too big")
	}
	c.Code[offset] = byte(jump >> 8)
	c.Code[offset+1] = byte(jump)
	return nil
}

// EmitLoop emits a JumpBack instruction whose offset sends ip back to
// loopStart: ip_after_operand - loopStart, where ip_after_operand is
// the position immediately following this instruction's own operand
// bytes (len(Code)+2 bytes beyond the current end, since the opcode
// byte is emitted by this same call).
func (c *Chunk) EmitLoop(loopStart int, line lexer.Line) error {
	c.PushOp(OpJumpBack, line)
	offset := len(c.Code) + 2 - loopStart
	if offset > maxJumpOffset {
		return fmt.Errorf("Jump too big")
	}
	c.Push(byte(offset>>8), line)
	c.Push(byte(offset), line)
	return nil
}

// ReadShort reads the big-endian 16-bit operand starting at ip.
func (c *Chunk) ReadShort(ip int) uint16 {
	return uint16(c.Code[ip])<<8 | uint16(c.Code[ip+1])
}

// ReadLong reads the big-endian 24-bit operand starting at ip.
func (c *Chunk) ReadLong(ip int) int {
	return int(c.Code[ip])<<16 | int(c.Code[ip+1])<<8 | int(c.Code[ip+2])
}
