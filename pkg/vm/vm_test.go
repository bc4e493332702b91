package vm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, source string) (string, string, error) {
	t.Helper()
	rt := New()
	var out, errOut bytes.Buffer
	rt.Stdout = &out
	rt.Stderr = &errOut
	err := Interpret(source, rt)
	return out.String(), errOut.String(), err
}

func TestArithmetic(t *testing.T) {
	out, _, err := run(t, `print(1 + 2 * 3);`)
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)
}

func TestStringConcat(t *testing.T) {
	out, _, err := run(t, `print("foo" + "bar");`)
	require.NoError(t, err)
	assert.Equal(t, "foobar\n", out)
}

func TestModulo(t *testing.T) {
	out, _, err := run(t, `print(7 % 2);`)
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)
}

// The division itself only reports a diagnostic and clears the stack;
// the run then stops at the Print that follows it, which finds the
// stack empty.
func TestDivisionByZeroIsRecoverable(t *testing.T) {
	out, errOut, err := run(t, `print(1 / 0); print("still alive");`)
	require.Error(t, err)
	var ierr *InterpretError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, RuntimeError, ierr.Kind)
	assert.Equal(t, "Stack underflow", ierr.Err.Error())
	assert.Contains(t, errOut, "Division by zero")
	assert.Equal(t, "", out)
}

func TestComparisons(t *testing.T) {
	out, _, err := run(t, `print(1 < 2); print(2 < 1); print(1 == 1);`)
	require.NoError(t, err)
	assert.Equal(t, "true\nfalse\ntrue\n", out)
}

func TestGlobals(t *testing.T) {
	out, _, err := run(t, `let x = 1; x = x + 1; print(x);`)
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestUndefinedGlobalIsFatal(t *testing.T) {
	_, errOut, err := run(t, `print(y);`)
	require.Error(t, err)
	var ierr *InterpretError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, RuntimeError, ierr.Kind)
	assert.Contains(t, errOut, "Undefined variable: y")
}

func TestDuplicateGlobalIsFatal(t *testing.T) {
	_, _, err := run(t, `let x = 1; let x = 2;`)
	require.Error(t, err)
	var ierr *InterpretError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, RuntimeError, ierr.Kind)
}

func TestLocalsAndScopes(t *testing.T) {
	out, _, err := run(t, `
let x = 1;
{
  let x = 2;
  print(x);
}
print(x);
`)
	require.NoError(t, err)
	assert.Equal(t, "2\n1\n", out)
}

func TestIfElse(t *testing.T) {
	out, _, err := run(t, `
if (1 < 2) {
  print("yes");
} else {
  print("no");
}
`)
	require.NoError(t, err)
	assert.Equal(t, "yes\n", out)
}

func TestWhileLoop(t *testing.T) {
	out, _, err := run(t, `
let i = 0;
while (i < 3) {
  print(i);
  i = i + 1;
}
`)
	require.NoError(t, err)
	assert.Equal(t, "0\n1\n2\n", out)
}

func TestAndOrShortCircuit(t *testing.T) {
	out, _, err := run(t, `
print(true and false);
print(true or false);
print(false and true);
`)
	require.NoError(t, err)
	assert.Equal(t, "false\ntrue\nfalse\n", out)
}

func TestTypeMismatchIsRecoverableThenUnderflows(t *testing.T) {
	_, errOut, err := run(t, `print(1 + true);`)
	assert.Contains(t, errOut, "Operands to '+' must be numbers or strings")
	var ierr *InterpretError
	if err != nil {
		require.ErrorAs(t, err, &ierr)
		assert.Equal(t, RuntimeError, ierr.Kind)
	}
}

func TestCompileErrorDoesNotRun(t *testing.T) {
	out, _, err := run(t, `let = 1;`)
	require.Error(t, err)
	var ierr *InterpretError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, CompileError, ierr.Kind)
	assert.Equal(t, "", out)
}

func TestGlobalsPersistAcrossInterpretCalls(t *testing.T) {
	rt := New()
	var out bytes.Buffer
	rt.Stdout = &out

	require.NoError(t, Interpret(`let x = 1;`, rt))
	require.NoError(t, Interpret(`print(x);`, rt))
	assert.Equal(t, "1\n", out.String())
}

// A string global's ObjRef must still resolve after the heap it was
// interned into has been reset by a later Interpret call on the same
// Runtime (the REPL's persistence model): Reset keeps Globals but
// frees the heap's backing object table, so a dangling ObjRef would
// otherwise panic on the next Get.
func TestStringGlobalSurvivesReset(t *testing.T) {
	rt := New()
	var out bytes.Buffer
	rt.Stdout = &out

	require.NoError(t, Interpret(`let s = "hi";`, rt))
	require.NoError(t, Interpret(`print(s);`, rt))
	assert.Equal(t, "hi\n", out.String())
}

func TestStringGlobalSurvivesManyResets(t *testing.T) {
	rt := New()
	var out bytes.Buffer
	rt.Stdout = &out

	require.NoError(t, Interpret(`let a = "one"; let b = "two";`, rt))
	require.NoError(t, Interpret(`let c = "three";`, rt))
	require.NoError(t, Interpret(`print(a); print(b); print(c);`, rt))
	assert.Equal(t, "one\ntwo\nthree\n", out.String())
}
