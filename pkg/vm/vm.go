// Package vm implements wisp's stack-machine execution loop: the
// Runtime that owns the value stack, the global-variable table, and
// the interned-string heap, plus the dispatch loop that walks a
// compiled Chunk one instruction at a time.
//
// Execution model: ip starts at the chunk's first byte. Each
// iteration reads one opcode byte and dispatches on it; most
// instructions pop their operands from the stack, compute a result,
// and push it back. Three conditions are non-recoverable (duplicate
// global, undefined global, stack underflow) and return an
// InterpretError immediately. Everything else that goes wrong at
// runtime (a type mismatch, a non-boolean jump condition, division by
// zero, an unrecognized opcode byte) is recoverable: it logs a
// diagnostic, clears the stack, and lets the dispatch loop continue.
package vm

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"

	"github.com/kristofer/wisp/internal/wlog"
	"github.com/kristofer/wisp/pkg/bytecode"
	"github.com/kristofer/wisp/pkg/compiler"
	"github.com/kristofer/wisp/pkg/lexer"
	"github.com/kristofer/wisp/pkg/value"
)

// Runtime is a reusable interpreter instance. One Runtime can service
// many successive Interpret calls (e.g. one per REPL line): Reset
// clears the stack, frees every heap object, and empties the intern
// table, but preserves Globals across calls so later lines can see
// variables earlier lines defined.
type Runtime struct {
	Chunk *bytecode.Chunk
	ip    int

	Stack []value.Value

	Heap    *value.Heap
	Globals map[string]value.Value

	Stdout io.Writer
	Stderr io.Writer

	// Trace turns on per-instruction disassembly and stack logging at
	// logrus Debug level.
	Trace bool
}

// New returns an empty Runtime, ready for its first Interpret call.
// Trace starts on when the shared logger is at Debug level (see
// wlog.SetTrace).
func New() *Runtime {
	return &Runtime{
		Heap:    value.NewHeap(),
		Globals: make(map[string]value.Value),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Trace:   wlog.Log.IsLevelEnabled(logrus.DebugLevel),
	}
}

// Reset clears the stack and frees all heap objects, but leaves
// Globals untouched. A string-valued global holds an ObjRef into the
// heap being freed, so its content is pulled out before the heap
// resets and re-interned into the fresh one, keeping its ObjRef valid
// under the new heap instead of dangling.
func (rt *Runtime) Reset() {
	rt.Stack = rt.Stack[:0]

	type pendingString struct {
		name string
		str  string
	}
	var pending []pendingString
	for name, v := range rt.Globals {
		if v.Kind == value.Obj {
			pending = append(pending, pendingString{name, rt.Heap.Get(v.ObjRef).Str})
		}
	}

	rt.Heap.Reset()

	for _, p := range pending {
		rt.Globals[p.name] = value.ObjValue(rt.Heap.InternString(p.str))
	}

	rt.Chunk = nil
	rt.ip = 0
}

// Interpret compiles source against rt's heap and runs the resulting
// chunk on rt. This is the entry point the REPL shell and the CLI's
// run command both call.
func Interpret(source string, rt *Runtime) error {
	rt.Reset()

	chunk, err := compiler.Compile(source, rt.Heap)
	if err != nil {
		fmt.Fprintf(rt.Stderr, "[compile error] %s\n", err)
		return &InterpretError{Kind: CompileError, Err: err}
	}
	rt.Chunk = chunk
	return rt.run()
}

func (rt *Runtime) push(v value.Value) { rt.Stack = append(rt.Stack, v) }

func (rt *Runtime) pop() (value.Value, bool) {
	n := len(rt.Stack)
	if n == 0 {
		return value.Value{}, false
	}
	v := rt.Stack[n-1]
	rt.Stack = rt.Stack[:n-1]
	return v, true
}

func (rt *Runtime) peek(distance int) value.Value {
	return rt.Stack[len(rt.Stack)-1-distance]
}

// fatal reports one of the non-recoverable conditions and returns the
// error run() should hand back to Interpret, aborting the rest of the
// chunk.
func (rt *Runtime) fatal(pos lexer.Line, msg string) error {
	fmt.Fprintf(rt.Stderr, "[runtime error] %s\n[line %d:%d] in script\n", msg, pos.Line, pos.Col)
	return &InterpretError{Kind: RuntimeError, Err: fmt.Errorf("%s", msg)}
}

// recoverable reports a type mismatch, a non-boolean jump condition,
// division by zero, or any other soft runtime problem: it logs the
// diagnostic and clears the stack, but does not stop the loop.
func (rt *Runtime) recoverable(pos lexer.Line, msg string) {
	fmt.Fprintf(rt.Stderr, "[runtime error] %s\n[line %d:%d] in script\n", msg, pos.Line, pos.Col)
	wlog.Log.Warn(msg)
	rt.Stack = rt.Stack[:0]
}

func (rt *Runtime) stackUnderflow(pos lexer.Line) error {
	return rt.fatal(pos, "Stack underflow")
}

func (rt *Runtime) globalName(idx int) string {
	ref := rt.Chunk.Constants[idx].ObjRef
	return rt.Heap.Get(ref).Str
}

// run is the main dispatch loop.
func (rt *Runtime) run() error {
	rt.ip = 0
	for rt.ip < len(rt.Chunk.Code) {
		instrStart := rt.ip
		pos := rt.Chunk.Lines[instrStart]

		if rt.Trace {
			line, _ := bytecode.DisassembleInstruction(rt.Chunk, rt.Heap, instrStart)
			names := maps.Keys(rt.Globals)
			sort.Strings(names)
			wlog.Log.Debugf("stack=%v globals=%v | %s", rt.Stack, names, line)
		}

		op := bytecode.Op(rt.Chunk.Code[rt.ip])
		rt.ip++

		switch op {
		case bytecode.OpReturn:
			return nil

		case bytecode.OpConstant:
			idx := int(rt.Chunk.Code[rt.ip])
			rt.ip++
			rt.push(rt.Chunk.Constants[idx])

		case bytecode.OpLongConstant:
			idx := rt.Chunk.ReadLong(rt.ip)
			rt.ip += 3
			rt.push(rt.Chunk.Constants[idx])

		case bytecode.OpNull:
			rt.push(value.NullValue)
		case bytecode.OpTrue:
			rt.push(value.BoolValue(true))
		case bytecode.OpFalse:
			rt.push(value.BoolValue(false))

		case bytecode.OpNegate:
			v, ok := rt.pop()
			if !ok {
				return rt.stackUnderflow(pos)
			}
			if v.Kind != value.Number {
				rt.recoverable(pos, "Operand to unary '-' must be a number")
				continue
			}
			rt.push(value.NumberValue(-v.Num))

		case bytecode.OpNot:
			v, ok := rt.pop()
			if !ok {
				return rt.stackUnderflow(pos)
			}
			rt.push(value.BoolValue(v.IsFalsey()))

		case bytecode.OpAdd:
			b, okb := rt.pop()
			a, oka := rt.pop()
			if !oka || !okb {
				return rt.stackUnderflow(pos)
			}
			switch {
			case a.Kind == value.Number && b.Kind == value.Number:
				rt.push(value.NumberValue(a.Num + b.Num))
			case a.Kind == value.Obj && b.Kind == value.Obj:
				rt.push(value.ObjValue(rt.Heap.Concat(a.ObjRef, b.ObjRef)))
			default:
				rt.recoverable(pos, "Operands to '+' must be numbers or strings")
			}

		case bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
			if err := rt.numericBinary(pos, op); err != nil {
				return err
			}

		case bytecode.OpEqual:
			b, okb := rt.pop()
			a, oka := rt.pop()
			if !oka || !okb {
				return rt.stackUnderflow(pos)
			}
			rt.push(value.BoolValue(value.Equal(a, b)))

		case bytecode.OpGreater, bytecode.OpLess:
			if err := rt.comparisonBinary(pos, op); err != nil {
				return err
			}

		case bytecode.OpPrint:
			v, ok := rt.pop()
			if !ok {
				return rt.stackUnderflow(pos)
			}
			fmt.Fprintln(rt.Stdout, formatPrint(v, rt.Heap))

		case bytecode.OpPop:
			if _, ok := rt.pop(); !ok {
				return rt.stackUnderflow(pos)
			}

		case bytecode.OpDefineGlobal, bytecode.OpDefineGlobalLong:
			idx := rt.readIndex(op)
			name := rt.globalName(idx)
			v, ok := rt.pop()
			if !ok {
				return rt.stackUnderflow(pos)
			}
			if _, exists := rt.Globals[name]; exists {
				return rt.fatal(pos, fmt.Sprintf("Duplicate global variable: %s", name))
			}
			rt.Globals[name] = v

		case bytecode.OpGetGlobal, bytecode.OpGetGlobalLong:
			idx := rt.readIndex(op)
			name := rt.globalName(idx)
			v, ok := rt.Globals[name]
			if !ok {
				return rt.fatal(pos, fmt.Sprintf("Undefined variable: %s", name))
			}
			rt.push(v)

		case bytecode.OpSetGlobal, bytecode.OpSetGlobalLong:
			idx := rt.readIndex(op)
			name := rt.globalName(idx)
			if _, exists := rt.Globals[name]; !exists {
				return rt.fatal(pos, fmt.Sprintf("Undefined variable: %s", name))
			}
			if len(rt.Stack) == 0 {
				return rt.stackUnderflow(pos)
			}
			rt.Globals[name] = rt.peek(0)

		case bytecode.OpGetLocal:
			slot := int(rt.Chunk.Code[rt.ip])
			rt.ip++
			rt.push(rt.Stack[slot])

		case bytecode.OpGetLocalLong:
			slot := rt.Chunk.ReadLong(rt.ip)
			rt.ip += 3
			rt.push(rt.Stack[slot])

		case bytecode.OpSetLocal:
			slot := int(rt.Chunk.Code[rt.ip])
			rt.ip++
			rt.Stack[slot] = rt.peek(0)

		case bytecode.OpSetLocalLong:
			slot := rt.Chunk.ReadLong(rt.ip)
			rt.ip += 3
			rt.Stack[slot] = rt.peek(0)

		case bytecode.OpJump:
			offset := rt.Chunk.ReadShort(rt.ip)
			rt.ip += 2
			rt.ip += int(offset)

		case bytecode.OpJumpIfFalse:
			offset := rt.Chunk.ReadShort(rt.ip)
			rt.ip += 2
			if len(rt.Stack) == 0 {
				return rt.stackUnderflow(pos)
			}
			cond := rt.peek(0)
			if cond.Kind != value.Bool {
				rt.recoverable(pos, "Condition must be a boolean")
				continue
			}
			if !cond.Bool {
				rt.ip += int(offset)
			}

		case bytecode.OpJumpBack:
			offset := rt.Chunk.ReadShort(rt.ip)
			rt.ip += 2
			rt.ip -= int(offset)

		default:
			wlog.Log.Warnf("unknown opcode 0x%02x at offset %d, skipped", byte(op), instrStart)
		}
	}
	return nil
}

func (rt *Runtime) readIndex(op bytecode.Op) int {
	switch op {
	case bytecode.OpDefineGlobalLong, bytecode.OpGetGlobalLong, bytecode.OpSetGlobalLong:
		idx := rt.Chunk.ReadLong(rt.ip)
		rt.ip += 3
		return idx
	default:
		idx := int(rt.Chunk.Code[rt.ip])
		rt.ip++
		return idx
	}
}

// numericBinary handles Sub/Mul/Div/Mod: pop two numbers, push the
// result. Division and modulo by zero are recoverable runtime errors,
// not a crash or a silent NaN/Inf. It returns a non-nil error only on
// stack underflow; a type mismatch or divide-by-zero is reported via
// rt.recoverable and returns nil so the loop continues.
func (rt *Runtime) numericBinary(pos lexer.Line, op bytecode.Op) error {
	b, okb := rt.pop()
	a, oka := rt.pop()
	if !oka || !okb {
		return rt.stackUnderflow(pos)
	}
	if a.Kind != value.Number || b.Kind != value.Number {
		rt.recoverable(pos, fmt.Sprintf("Operands to '%s' must be numbers", opSymbol(op)))
		return nil
	}
	switch op {
	case bytecode.OpSub:
		rt.push(value.NumberValue(a.Num - b.Num))
	case bytecode.OpMul:
		rt.push(value.NumberValue(a.Num * b.Num))
	case bytecode.OpDiv:
		if b.Num == 0 {
			rt.recoverable(pos, "Division by zero")
			return nil
		}
		rt.push(value.NumberValue(a.Num / b.Num))
	case bytecode.OpMod:
		if b.Num == 0 {
			rt.recoverable(pos, "Division by zero")
			return nil
		}
		rt.push(value.NumberValue(math.Mod(a.Num, b.Num)))
	}
	return nil
}

func (rt *Runtime) comparisonBinary(pos lexer.Line, op bytecode.Op) error {
	b, okb := rt.pop()
	a, oka := rt.pop()
	if !oka || !okb {
		return rt.stackUnderflow(pos)
	}
	if a.Kind != value.Number || b.Kind != value.Number {
		rt.recoverable(pos, fmt.Sprintf("Operands to '%s' must be numbers", opSymbol(op)))
		return nil
	}
	switch op {
	case bytecode.OpGreater:
		rt.push(value.BoolValue(a.Num > b.Num))
	case bytecode.OpLess:
		rt.push(value.BoolValue(a.Num < b.Num))
	}
	return nil
}

func opSymbol(op bytecode.Op) string {
	switch op {
	case bytecode.OpSub:
		return "-"
	case bytecode.OpMul:
		return "*"
	case bytecode.OpDiv:
		return "/"
	case bytecode.OpMod:
		return "%"
	case bytecode.OpGreater:
		return ">"
	case bytecode.OpLess:
		return "<"
	default:
		return op.String()
	}
}

func formatPrint(v value.Value, heap *value.Heap) string {
	switch v.Kind {
	case value.Null:
		return "null"
	case value.Bool:
		return strconv.FormatBool(v.Bool)
	case value.Number:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case value.Obj:
		return heap.Get(v.ObjRef).Str
	default:
		return "<?>"
	}
}
