package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFalsey(t *testing.T) {
	assert.True(t, NullValue.IsFalsey())
	assert.True(t, BoolValue(false).IsFalsey())
	assert.False(t, BoolValue(true).IsFalsey())
	assert.False(t, NumberValue(0).IsFalsey())
	assert.False(t, ObjValue(0).IsFalsey())
}

func TestEqualAcrossKinds(t *testing.T) {
	assert.True(t, Equal(NullValue, NullValue))
	assert.True(t, Equal(BoolValue(true), BoolValue(true)))
	assert.False(t, Equal(BoolValue(true), BoolValue(false)))
	assert.True(t, Equal(NumberValue(1), NumberValue(1)))
	assert.False(t, Equal(NumberValue(1), NumberValue(2)))
	assert.False(t, Equal(NumberValue(1), BoolValue(true)))
	assert.False(t, Equal(NullValue, BoolValue(false)))
}

func TestEqualObjByHandle(t *testing.T) {
	heap := NewHeap()
	a := heap.InternString("hi")
	b := heap.InternString("hi")
	c := heap.InternString("bye")
	assert.True(t, Equal(ObjValue(a), ObjValue(b)))
	assert.False(t, Equal(ObjValue(a), ObjValue(c)))
}
