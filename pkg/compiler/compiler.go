// Package compiler implements wisp's single-pass Pratt parser: it
// consumes tokens from pkg/lexer and emits bytecode directly into a
// pkg/bytecode.Chunk, with no intermediate AST. Scope and local-slot
// tracking, jump patching for if/while, and short/long opcode
// selection for large constant pools and local tables all happen
// inline as the parser walks the token stream once.
package compiler

import (
	"fmt"
	"strconv"
	"strings"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/kristofer/wisp/pkg/bytecode"
	"github.com/kristofer/wisp/pkg/lexer"
	"github.com/kristofer/wisp/pkg/value"
)

// Precedence orders how tightly operators bind, from loosest to
// tightest, driving parsePrecedence's climb.
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssignment
	PrecOr
	PrecAnd
	PrecEquality
	PrecComparison
	PrecTerm
	PrecFactor
	PrecUnary
	PrecCall
	PrecPrimary
)

type parseFn func(p *Parser, canAssign bool)

// ParseRule is one row of the parse-rule table: the prefix handler
// for a token starting an expression, the infix handler for a token
// continuing one, and the precedence an infix use of this token binds
// at.
type ParseRule struct {
	Prefix     parseFn
	Infix      parseFn
	Precedence Precedence
}

var rules = map[lexer.TokenKind]ParseRule{
	lexer.TokenLeftParen:    {Prefix: grouping},
	lexer.TokenMinus:        {Prefix: unary, Infix: binary, Precedence: PrecTerm},
	lexer.TokenPlus:         {Infix: binary, Precedence: PrecTerm},
	lexer.TokenSlash:        {Infix: binary, Precedence: PrecFactor},
	lexer.TokenStar:         {Infix: binary, Precedence: PrecFactor},
	lexer.TokenPercent:      {Infix: binary, Precedence: PrecFactor},
	lexer.TokenBang:         {Prefix: unary},
	lexer.TokenBangEqual:    {Infix: binary, Precedence: PrecEquality},
	lexer.TokenEqualEqual:   {Infix: binary, Precedence: PrecEquality},
	lexer.TokenGreater:      {Infix: binary, Precedence: PrecComparison},
	lexer.TokenGreaterEqual: {Infix: binary, Precedence: PrecComparison},
	lexer.TokenLess:         {Infix: binary, Precedence: PrecComparison},
	lexer.TokenLessEqual:    {Infix: binary, Precedence: PrecComparison},
	lexer.TokenIdentifier:   {Prefix: variable},
	lexer.TokenString:       {Prefix: stringLiteral},
	lexer.TokenNumber:       {Prefix: number},
	lexer.TokenTrue:         {Prefix: literal},
	lexer.TokenFalse:        {Prefix: literal},
	lexer.TokenNull:         {Prefix: literal},
	lexer.TokenAnd:          {Infix: and_, Precedence: PrecAnd},
	lexer.TokenOr:           {Infix: or_, Precedence: PrecOr},
}

func getRule(kind lexer.TokenKind) ParseRule { return rules[kind] }

// local is a compile-time stack entry; its index in Parser.locals is
// the VM stack slot the variable will occupy at runtime.
type local struct {
	name  lexer.Token
	depth int
}

// Parser holds all single-pass compilation state: the scanner, the
// one-token lookahead window, error/panic flags, the chunk being
// emitted into, and the local-variable/scope stack.
type Parser struct {
	scanner *lexer.Scanner

	current  lexer.Token
	previous lexer.Token

	hadError  bool
	panicMode bool
	errs      *multierror.Error

	chunk *bytecode.Chunk
	heap  *value.Heap

	locals     []local
	scopeDepth int
}

// Compile compiles source into a fresh Chunk, interning any string
// literals and variable names into heap. It returns every compile
// diagnostic accumulated (not just the first) as a single error; no
// chunk is returned when compilation failed.
func Compile(source string, heap *value.Heap) (*bytecode.Chunk, error) {
	p := &Parser{
		scanner: lexer.New(source),
		chunk:   bytecode.New(),
		heap:    heap,
	}

	p.advance()
	for !p.check(lexer.TokenEOF) {
		p.declaration()
	}
	p.emitOp(bytecode.OpReturn)

	if p.hadError {
		return nil, p.errs.ErrorOrNil()
	}
	return p.chunk, nil
}

// --- token stream -----------------------------------------------------

func (p *Parser) advance() {
	p.previous = p.current
	for {
		p.current = p.scanner.Next()
		if p.current.Kind != lexer.TokenError {
			return
		}
		p.errorAtCurrent(p.current.Lexeme)
	}
}

func (p *Parser) check(kind lexer.TokenKind) bool { return p.current.Kind == kind }

func (p *Parser) match(kind lexer.TokenKind) bool {
	if !p.check(kind) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) consume(kind lexer.TokenKind, msg string) {
	if p.current.Kind == kind {
		p.advance()
		return
	}
	p.errorAtCurrent(msg)
}

// --- error reporting (§4.8) --------------------------------------------

func (p *Parser) errorAtCurrent(msg string) { p.errorAt(p.current, msg) }
func (p *Parser) errorAtPrevious(msg string) { p.errorAt(p.previous, msg) }

func (p *Parser) errorAt(tok lexer.Token, msg string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.hadError = true

	var where string
	switch tok.Kind {
	case lexer.TokenEOF:
		where = " at end"
	case lexer.TokenError:
		where = ""
	default:
		where = fmt.Sprintf(" at '%s'", tok.Lexeme)
	}
	p.errs = multierror.Append(p.errs, fmt.Errorf("[line %d:%d]%s: %s", tok.Pos.Line, tok.Pos.Col, where, msg))
}

// synchronize discards tokens after an error until a likely statement
// boundary, to limit cascading diagnostics.
func (p *Parser) synchronize() {
	p.panicMode = false
	for p.current.Kind != lexer.TokenEOF {
		if p.previous.Kind == lexer.TokenSemicolon {
			return
		}
		switch p.current.Kind {
		case lexer.TokenFn, lexer.TokenLet, lexer.TokenFor, lexer.TokenIf, lexer.TokenPrint, lexer.TokenReturn, lexer.TokenWhile:
			return
		}
		p.advance()
	}
}

// --- emission helpers ---------------------------------------------------

func (p *Parser) emitByte(b byte)          { p.chunk.Push(b, p.previous.Pos) }
func (p *Parser) emitOp(op bytecode.Op)    { p.chunk.PushOp(op, p.previous.Pos) }
func (p *Parser) emitIndexed(idx int, shortOp, longOp bytecode.Op) {
	p.chunk.PushIndexed(idx, p.previous.Pos, shortOp, longOp)
}

func (p *Parser) emitConstant(v value.Value) {
	idx := p.chunk.MakeConstant(v)
	p.emitIndexed(idx, bytecode.OpConstant, bytecode.OpLongConstant)
}

func (p *Parser) emitJump(op bytecode.Op) int { return p.chunk.EmitJump(op, p.previous.Pos) }

func (p *Parser) patchJump(offset int) {
	if err := p.chunk.PatchJump(offset); err != nil {
		p.errorAtPrevious(err.Error())
	}
}

func (p *Parser) emitLoop(loopStart int) {
	if err := p.chunk.EmitLoop(loopStart, p.previous.Pos); err != nil {
		p.errorAtPrevious(err.Error())
	}
}

// --- scopes and locals (§4.5) -------------------------------------------

func (p *Parser) beginScope() { p.scopeDepth++ }

func (p *Parser) endScope() {
	p.scopeDepth--
	for len(p.locals) > 0 && p.locals[len(p.locals)-1].depth > p.scopeDepth {
		p.emitOp(bytecode.OpPop)
		p.locals = p.locals[:len(p.locals)-1]
	}
}

func (p *Parser) addLocal(name lexer.Token) {
	p.locals = append(p.locals, local{name: name, depth: p.scopeDepth})
}

// resolveLocal scans the compile-time locals stack innermost-first by
// name equality, returning the slot and whether one was found.
func (p *Parser) resolveLocal(name lexer.Token) (int, bool) {
	for i := len(p.locals) - 1; i >= 0; i-- {
		if p.locals[i].name.Lexeme == name.Lexeme {
			return i, true
		}
	}
	return -1, false
}

// --- declarations and statements (§4.7) ----------------------------------

func (p *Parser) declaration() {
	if p.match(lexer.TokenLet) {
		p.varDeclaration()
	} else {
		p.statement()
	}
	if p.panicMode {
		p.synchronize()
	}
}

func (p *Parser) varDeclaration() {
	p.consume(lexer.TokenIdentifier, "Expect variable name.")
	name := p.previous

	if p.scopeDepth > 0 {
		p.addLocal(name)
		if p.match(lexer.TokenEqual) {
			p.expression()
		} else {
			p.emitOp(bytecode.OpNull)
		}
		p.consume(lexer.TokenSemicolon, "Expect ';' after variable declaration.")
		return
	}

	idx := p.chunk.MakeString(p.heap, name.Lexeme)
	if p.match(lexer.TokenEqual) {
		p.expression()
	} else {
		p.emitOp(bytecode.OpNull)
	}
	p.consume(lexer.TokenSemicolon, "Expect ';' after variable declaration.")
	p.emitIndexed(idx, bytecode.OpDefineGlobal, bytecode.OpDefineGlobalLong)
}

func (p *Parser) statement() {
	switch {
	case p.match(lexer.TokenPrint):
		p.printStatement()
	case p.match(lexer.TokenIf):
		p.ifStatement()
	case p.match(lexer.TokenWhile):
		p.whileStatement()
	case p.match(lexer.TokenLeftBrace):
		p.beginScope()
		p.block()
		p.endScope()
	default:
		p.expressionStatement()
	}
}

func (p *Parser) printStatement() {
	p.consume(lexer.TokenLeftParen, "Expect '(' after 'print'.")
	p.expression()
	p.consume(lexer.TokenRightParen, "Expect ')' after value.")
	p.consume(lexer.TokenSemicolon, "Expect ';' after value.")
	p.emitOp(bytecode.OpPrint)
}

func (p *Parser) expressionStatement() {
	p.expression()
	p.consume(lexer.TokenSemicolon, "Expect ';' after expression.")
	p.emitOp(bytecode.OpPop)
}

func (p *Parser) block() {
	for !p.check(lexer.TokenRightBrace) && !p.check(lexer.TokenEOF) {
		p.declaration()
	}
	p.consume(lexer.TokenRightBrace, "Expect '}' after block.")
}

func (p *Parser) branchBlock() {
	p.consume(lexer.TokenLeftBrace, "Expect '{' before block.")
	p.beginScope()
	p.block()
	p.endScope()
}

func (p *Parser) ifStatement() {
	p.expression()
	thenJump := p.emitJump(bytecode.OpJumpIfFalse)
	p.emitOp(bytecode.OpPop)
	p.branchBlock()

	elseJump := p.emitJump(bytecode.OpJump)
	p.patchJump(thenJump)
	p.emitOp(bytecode.OpPop)

	if p.match(lexer.TokenElse) {
		p.branchBlock()
	}
	p.patchJump(elseJump)
}

func (p *Parser) whileStatement() {
	loopStart := len(p.chunk.Code)
	p.expression()
	exitJump := p.emitJump(bytecode.OpJumpIfFalse)
	p.emitOp(bytecode.OpPop)
	p.branchBlock()
	p.emitLoop(loopStart)
	p.patchJump(exitJump)
	p.emitOp(bytecode.OpPop)
}

// --- expressions (§4.4, §4.6) ---------------------------------------------

func (p *Parser) expression() { p.parsePrecedence(PrecAssignment) }

func (p *Parser) parsePrecedence(prec Precedence) {
	p.advance()
	prefix := getRule(p.previous.Kind).Prefix
	if prefix == nil {
		p.errorAtPrevious("Expected expression")
		return
	}
	canAssign := prec <= PrecAssignment
	prefix(p, canAssign)

	for prec <= getRule(p.current.Kind).Precedence {
		p.advance()
		infix := getRule(p.previous.Kind).Infix
		infix(p, canAssign)
	}

	if canAssign && p.match(lexer.TokenEqual) {
		p.errorAtPrevious("Invalid assignment target.")
	}
}

func grouping(p *Parser, _ bool) {
	p.expression()
	p.consume(lexer.TokenRightParen, "Expect ')' after expression.")
}

func unary(p *Parser, _ bool) {
	opKind := p.previous.Kind
	p.parsePrecedence(PrecUnary)
	switch opKind {
	case lexer.TokenMinus:
		p.emitOp(bytecode.OpNegate)
	case lexer.TokenBang:
		p.emitOp(bytecode.OpNot)
	}
}

func binary(p *Parser, _ bool) {
	opKind := p.previous.Kind
	rule := getRule(opKind)
	p.parsePrecedence(rule.Precedence + 1)

	switch opKind {
	case lexer.TokenPlus:
		p.emitOp(bytecode.OpAdd)
	case lexer.TokenMinus:
		p.emitOp(bytecode.OpSub)
	case lexer.TokenStar:
		p.emitOp(bytecode.OpMul)
	case lexer.TokenSlash:
		p.emitOp(bytecode.OpDiv)
	case lexer.TokenPercent:
		p.emitOp(bytecode.OpMod)
	case lexer.TokenEqualEqual:
		p.emitOp(bytecode.OpEqual)
	case lexer.TokenBangEqual:
		p.emitOp(bytecode.OpEqual)
		p.emitOp(bytecode.OpNot)
	case lexer.TokenGreater:
		p.emitOp(bytecode.OpGreater)
	case lexer.TokenGreaterEqual:
		p.emitOp(bytecode.OpLess)
		p.emitOp(bytecode.OpNot)
	case lexer.TokenLess:
		p.emitOp(bytecode.OpLess)
	case lexer.TokenLessEqual:
		p.emitOp(bytecode.OpGreater)
		p.emitOp(bytecode.OpNot)
	}
}

func number(p *Parser, _ bool) {
	lexeme := strings.ReplaceAll(p.previous.Lexeme, "_", "")
	n, err := strconv.ParseFloat(lexeme, 64)
	if err != nil {
		p.errorAtPrevious("Invalid number literal.")
		return
	}
	p.emitConstant(value.NumberValue(n))
}

func stringLiteral(p *Parser, _ bool) {
	raw := p.previous.Lexeme
	content := raw[1 : len(raw)-1]
	idx := p.chunk.MakeString(p.heap, content)
	p.emitIndexed(idx, bytecode.OpConstant, bytecode.OpLongConstant)
}

func literal(p *Parser, _ bool) {
	switch p.previous.Kind {
	case lexer.TokenFalse:
		p.emitOp(bytecode.OpFalse)
	case lexer.TokenTrue:
		p.emitOp(bytecode.OpTrue)
	case lexer.TokenNull:
		p.emitOp(bytecode.OpNull)
	}
}

func variable(p *Parser, canAssign bool) {
	namedVariable(p, p.previous, canAssign)
}

func namedVariable(p *Parser, name lexer.Token, canAssign bool) {
	var getOp, getOpLong, setOp, setOpLong bytecode.Op
	var idx int

	if slot, ok := p.resolveLocal(name); ok {
		idx = slot
		getOp, getOpLong = bytecode.OpGetLocal, bytecode.OpGetLocalLong
		setOp, setOpLong = bytecode.OpSetLocal, bytecode.OpSetLocalLong
	} else {
		idx = p.chunk.MakeString(p.heap, name.Lexeme)
		getOp, getOpLong = bytecode.OpGetGlobal, bytecode.OpGetGlobalLong
		setOp, setOpLong = bytecode.OpSetGlobal, bytecode.OpSetGlobalLong
	}

	if canAssign && p.match(lexer.TokenEqual) {
		p.expression()
		p.emitIndexed(idx, setOp, setOpLong)
	} else {
		p.emitIndexed(idx, getOp, getOpLong)
	}
}

func and_(p *Parser, _ bool) {
	endJump := p.emitJump(bytecode.OpJumpIfFalse)
	p.emitOp(bytecode.OpPop)
	p.parsePrecedence(PrecAnd)
	p.patchJump(endJump)
}

func or_(p *Parser, _ bool) {
	elseJump := p.emitJump(bytecode.OpJumpIfFalse)
	endJump := p.emitJump(bytecode.OpJump)
	p.patchJump(elseJump)
	p.emitOp(bytecode.OpPop)
	p.parsePrecedence(PrecOr)
	p.patchJump(endJump)
}
