package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/wisp/pkg/bytecode"
	"github.com/kristofer/wisp/pkg/value"
)

func compile(t *testing.T, source string) *bytecode.Chunk {
	t.Helper()
	heap := value.NewHeap()
	chunk, err := Compile(source, heap)
	require.NoError(t, err)
	return chunk
}

func TestCompileArithmeticEndsInReturn(t *testing.T) {
	chunk := compile(t, `print(1 + 2);`)
	require.NotEmpty(t, chunk.Code)
	assert.Equal(t, bytecode.OpReturn, bytecode.Op(chunk.Code[len(chunk.Code)-1]))
}

func TestCompileGlobalDeclaration(t *testing.T) {
	chunk := compile(t, `let x = 1;`)
	assert.Contains(t, chunk.Code, byte(bytecode.OpDefineGlobal))
}

func TestCompileLocalDoesNotEmitDefine(t *testing.T) {
	chunk := compile(t, `{ let x = 1; print(x); }`)
	for _, b := range chunk.Code {
		assert.NotEqual(t, byte(bytecode.OpDefineGlobal), b)
		assert.NotEqual(t, byte(bytecode.OpDefineGlobalLong), b)
	}
}

func TestCompileErrorReportsLocation(t *testing.T) {
	heap := value.NewHeap()
	_, err := Compile(`let = 1;`, heap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line")
}

func TestCompileUnclosedBlockCommentIsCompileError(t *testing.T) {
	heap := value.NewHeap()
	_, err := Compile(`/* never closed`, heap)
	require.Error(t, err)
}

func TestCompileIfEmitsJumps(t *testing.T) {
	chunk := compile(t, `if (true) { print(1); } else { print(2); }`)
	assert.Contains(t, chunk.Code, byte(bytecode.OpJumpIfFalse))
	assert.Contains(t, chunk.Code, byte(bytecode.OpJump))
}

func TestCompileWhileEmitsJumpBack(t *testing.T) {
	chunk := compile(t, `while (true) { print(1); }`)
	assert.Contains(t, chunk.Code, byte(bytecode.OpJumpBack))
}

func TestCompileStringLiteralStripsQuotes(t *testing.T) {
	heap := value.NewHeap()
	chunk, err := Compile(`print("hi");`, heap)
	require.NoError(t, err)
	found := false
	for _, c := range chunk.Constants {
		if c.Kind == value.Obj {
			if heap.Get(c.ObjRef).Str == "hi" {
				found = true
			}
		}
	}
	assert.True(t, found)
}

func TestCompileInvalidAssignmentTarget(t *testing.T) {
	heap := value.NewHeap()
	_, err := Compile(`1 + 2 = 3;`, heap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid assignment target")
}

func TestCompileMultipleErrorsAccumulate(t *testing.T) {
	heap := value.NewHeap()
	_, err := Compile(`let = 1; let = 2;`, heap)
	require.Error(t, err)
	assert.Equal(t, 2, strings.Count(err.Error(), "Expect variable name."))
}
