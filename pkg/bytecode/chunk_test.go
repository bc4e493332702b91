package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/wisp/pkg/lexer"
	"github.com/kristofer/wisp/pkg/value"
)

var line = lexer.Line{Line: 1, Col: 1}

func TestPushIndexedShort(t *testing.T) {
	c := New()
	c.PushIndexed(3, line, OpConstant, OpLongConstant)
	require.Len(t, c.Code, 2)
	assert.Equal(t, byte(OpConstant), c.Code[0])
	assert.Equal(t, byte(3), c.Code[1])
}

func TestPushIndexedLong(t *testing.T) {
	c := New()
	c.PushIndexed(300, line, OpConstant, OpLongConstant)
	require.Len(t, c.Code, 4)
	assert.Equal(t, byte(OpLongConstant), c.Code[0])
	assert.Equal(t, 300, c.ReadLong(1))
}

func TestPatchJumpComputesForwardOffset(t *testing.T) {
	c := New()
	jumpAt := c.EmitJump(OpJump, line)
	c.PushOp(OpReturn, line)
	c.PushOp(OpReturn, line)
	require.NoError(t, c.PatchJump(jumpAt))
	assert.Equal(t, uint16(2), c.ReadShort(jumpAt))
}

func TestPatchJumpTooBig(t *testing.T) {
	c := New()
	jumpAt := c.EmitJump(OpJump, line)
	for i := 0; i < maxJumpOffset+1; i++ {
		c.PushOp(OpReturn, line)
	}
	err := c.PatchJump(jumpAt)
	require.Error(t, err)
}

func TestEmitLoopBacksUpToLoopStart(t *testing.T) {
	c := New()
	loopStart := len(c.Code)
	c.PushOp(OpTrue, line)
	require.NoError(t, c.EmitLoop(loopStart, line))

	offset := c.ReadShort(len(c.Code) - 2)
	ipAfterOperand := len(c.Code)
	assert.Equal(t, loopStart, ipAfterOperand-int(offset))
}

func TestMakeStringInternsAndRecords(t *testing.T) {
	c := New()
	heap := value.NewHeap()
	idx := c.MakeString(heap, "hello")
	require.Len(t, c.Strings, 1)
	assert.Equal(t, "hello", heap.Get(c.Constants[idx].ObjRef).Str)
}
