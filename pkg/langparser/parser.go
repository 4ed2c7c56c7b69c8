// Package langparser is the reference implementation of langast.Parser for
// the Python-flavoured expression dialect spec.md's scenarios are written
// in: assignment, for/while, comprehensions, literals, calls,
// attribute/subscript access, boolean/arithmetic/comparison operators, plus
// def/class/lambda/try/with syntax (recognised so the checker can gate
// them; the reference evaluator executes them only partly — see
// SPEC_FULL.md §2).
package langparser

import (
	"fmt"

	"github.com/sandboxkernel/sandboxkernel/pkg/langast"
)

// Parser implements langast.Parser.
type Parser struct{}

// New returns a reference Parser instance.
func New() *Parser { return &Parser{} }

// Parse tokenizes and parses source into a Program.
func (p *Parser) Parse(source string) (*langast.Program, error) {
	toks, err := lex(source)
	if err != nil {
		return nil, err
	}
	ps := &parserState{toks: toks}
	body, err := ps.parseBlockTop()
	if err != nil {
		return nil, err
	}
	return &langast.Program{Body: body}, nil
}

type parserState struct {
	toks []token
	pos  int
}

func (ps *parserState) cur() token  { return ps.toks[ps.pos] }
func (ps *parserState) at(k tokenKind) bool { return ps.cur().kind == k }
func (ps *parserState) atOp(s string) bool  { return ps.cur().kind == tOp && ps.cur().text == s }
func (ps *parserState) atKw(s string) bool  { return ps.cur().kind == tKeyword && ps.cur().text == s }
func (ps *parserState) advance() token {
	t := ps.cur()
	if ps.pos < len(ps.toks)-1 {
		ps.pos++
	}
	return t
}

func (ps *parserState) pos2(t token) langast.Pos { return langast.Pos{Line: t.line, Col: t.col} }

func (ps *parserState) expectOp(s string) (token, error) {
	if !ps.atOp(s) {
		return token{}, fmt.Errorf("expected %q at line %d, got %q", s, ps.cur().line, ps.cur().text)
	}
	return ps.advance(), nil
}

func (ps *parserState) expectKw(s string) (token, error) {
	if !ps.atKw(s) {
		return token{}, fmt.Errorf("expected keyword %q at line %d, got %q", s, ps.cur().line, ps.cur().text)
	}
	return ps.advance(), nil
}

func (ps *parserState) skipNewlines() {
	for ps.at(tNewline) {
		ps.advance()
	}
}

// parseBlockTop parses a top-level sequence of statements until EOF.
func (ps *parserState) parseBlockTop() ([]langast.Stmt, error) {
	var stmts []langast.Stmt
	ps.skipNewlines()
	for !ps.at(tEOF) {
		s, err := ps.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s...)
		ps.skipNewlines()
	}
	return stmts, nil
}

// parseSuite parses the body of a compound statement after its trailing
// ':' — either a single simple-statement line, or an indented block.
func (ps *parserState) parseSuite() ([]langast.Stmt, error) {
	if _, err := ps.expectOp(":"); err != nil {
		return nil, err
	}
	if ps.at(tNewline) {
		ps.advance()
		if !ps.at(tIndent) {
			return nil, fmt.Errorf("expected indented block at line %d", ps.cur().line)
		}
		ps.advance()
		var stmts []langast.Stmt
		ps.skipNewlines()
		for !ps.at(tDedent) && !ps.at(tEOF) {
			s, err := ps.parseStatement()
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, s...)
			ps.skipNewlines()
		}
		if ps.at(tDedent) {
			ps.advance()
		}
		return stmts, nil
	}
	return ps.parseSimpleStmtLine()
}

func (ps *parserState) parseSimpleStmtLine() ([]langast.Stmt, error) {
	var stmts []langast.Stmt
	for {
		s, err := ps.parseSimpleStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
		if ps.atOp(";") {
			ps.advance()
			continue
		}
		break
	}
	if ps.at(tNewline) {
		ps.advance()
	}
	return stmts, nil
}

func (ps *parserState) parseStatement() ([]langast.Stmt, error) {
	t := ps.cur()
	if t.kind == tKeyword {
		switch t.text {
		case "if":
			s, err := ps.parseIf()
			return []langast.Stmt{s}, err
		case "for":
			s, err := ps.parseFor()
			return []langast.Stmt{s}, err
		case "while":
			s, err := ps.parseWhile()
			return []langast.Stmt{s}, err
		case "def":
			s, err := ps.parseDef()
			return []langast.Stmt{s}, err
		case "class":
			s, err := ps.parseClass()
			return []langast.Stmt{s}, err
		case "try":
			s, err := ps.parseTry()
			return []langast.Stmt{s}, err
		case "with":
			s, err := ps.parseWith()
			return []langast.Stmt{s}, err
		case "async":
			return nil, fmt.Errorf("async is not allowed at line %d", t.line)
		}
	}
	return ps.parseSimpleStmtLine()
}

func (ps *parserState) parseIf() (langast.Stmt, error) {
	t := ps.advance() // 'if'
	test, err := ps.parseTest()
	if err != nil {
		return nil, err
	}
	body, err := ps.parseSuite()
	if err != nil {
		return nil, err
	}
	node := &langast.If{Test: test, Body: body}
	node.Pos = ps.pos2(t)
	if ps.atKw("elif") {
		elif, err := ps.parseIf()
		if err != nil {
			return nil, err
		}
		node.Orelse = []langast.Stmt{elif}
	} else if ps.atKw("else") {
		ps.advance()
		orelse, err := ps.parseSuite()
		if err != nil {
			return nil, err
		}
		node.Orelse = orelse
	}
	return node, nil
}

func (ps *parserState) parseFor() (langast.Stmt, error) {
	t := ps.advance() // 'for'
	target, err := ps.parseAtomTrailer()
	if err != nil {
		return nil, err
	}
	if _, err := ps.expectKw("in"); err != nil {
		return nil, err
	}
	iter, err := ps.parseTest()
	if err != nil {
		return nil, err
	}
	body, err := ps.parseSuite()
	if err != nil {
		return nil, err
	}
	node := &langast.For{Target: target, Iter: iter, Body: body}
	node.Pos = ps.pos2(t)
	if ps.atKw("else") {
		ps.advance()
		orelse, err := ps.parseSuite()
		if err != nil {
			return nil, err
		}
		node.Orelse = orelse
	}
	return node, nil
}

func (ps *parserState) parseWhile() (langast.Stmt, error) {
	t := ps.advance() // 'while'
	test, err := ps.parseTest()
	if err != nil {
		return nil, err
	}
	body, err := ps.parseSuite()
	if err != nil {
		return nil, err
	}
	node := &langast.While{Test: test, Body: body}
	node.Pos = ps.pos2(t)
	if ps.atKw("else") {
		ps.advance()
		orelse, err := ps.parseSuite()
		if err != nil {
			return nil, err
		}
		node.Orelse = orelse
	}
	return node, nil
}

func (ps *parserState) parseParamList() ([]string, error) {
	var names []string
	for !ps.atOp(")") && !ps.atOp(":") {
		n, err := ps.expectName()
		if err != nil {
			return nil, err
		}
		names = append(names, n)
		if ps.atOp("=") {
			ps.advance()
			if _, err := ps.parseTest(); err != nil {
				return nil, err
			}
		}
		if ps.atOp(",") {
			ps.advance()
			continue
		}
		break
	}
	return names, nil
}

func (ps *parserState) parseDef() (langast.Stmt, error) {
	t := ps.advance() // 'def'
	name, err := ps.expectName()
	if err != nil {
		return nil, err
	}
	if _, err := ps.expectOp("("); err != nil {
		return nil, err
	}
	args, err := ps.parseParamList()
	if err != nil {
		return nil, err
	}
	if _, err := ps.expectOp(")"); err != nil {
		return nil, err
	}
	if ps.atOp("->") {
		ps.advance()
		if _, err := ps.parseTest(); err != nil {
			return nil, err
		}
	}
	body, err := ps.parseSuite()
	if err != nil {
		return nil, err
	}
	node := &langast.FunctionDef{Name: name, Args: args, Body: body}
	node.Pos = ps.pos2(t)
	return node, nil
}

func (ps *parserState) parseClass() (langast.Stmt, error) {
	t := ps.advance() // 'class'
	name, err := ps.expectName()
	if err != nil {
		return nil, err
	}
	if ps.atOp("(") {
		ps.advance()
		for !ps.atOp(")") {
			if _, err := ps.parseTest(); err != nil {
				return nil, err
			}
			if ps.atOp(",") {
				ps.advance()
				continue
			}
			break
		}
		if _, err := ps.expectOp(")"); err != nil {
			return nil, err
		}
	}
	body, err := ps.parseSuite()
	if err != nil {
		return nil, err
	}
	node := &langast.ClassDef{Name: name, Body: body}
	node.Pos = ps.pos2(t)
	return node, nil
}

func (ps *parserState) parseTry() (langast.Stmt, error) {
	t := ps.advance() // 'try'
	body, err := ps.parseSuite()
	if err != nil {
		return nil, err
	}
	node := &langast.Try{Body: body}
	node.Pos = ps.pos2(t)
	for ps.atKw("except") {
		ps.advance()
		if !ps.atOp(":") {
			if _, err := ps.parseTest(); err != nil {
				return nil, err
			}
			if ps.atKw("as") {
				ps.advance()
				if _, err := ps.expectName(); err != nil {
					return nil, err
				}
			}
		}
		handlerBody, err := ps.parseSuite()
		if err != nil {
			return nil, err
		}
		node.Handlers = append(node.Handlers, handlerBody...)
	}
	if ps.atKw("else") {
		ps.advance()
		orelse, err := ps.parseSuite()
		if err != nil {
			return nil, err
		}
		node.Orelse = orelse
	}
	if ps.atKw("finally") {
		ps.advance()
		fin, err := ps.parseSuite()
		if err != nil {
			return nil, err
		}
		node.Finally = fin
	}
	return node, nil
}

func (ps *parserState) parseWith() (langast.Stmt, error) {
	t := ps.advance() // 'with'
	var items []langast.Expr
	for {
		e, err := ps.parseTest()
		if err != nil {
			return nil, err
		}
		if ps.atKw("as") {
			ps.advance()
			if _, err := ps.parseAtomTrailer(); err != nil {
				return nil, err
			}
		}
		items = append(items, e)
		if ps.atOp(",") {
			ps.advance()
			continue
		}
		break
	}
	body, err := ps.parseSuite()
	if err != nil {
		return nil, err
	}
	node := &langast.With{Items: items, Body: body}
	node.Pos = ps.pos2(t)
	return node, nil
}

func (ps *parserState) expectName() (string, error) {
	if !ps.at(tName) {
		return "", fmt.Errorf("expected identifier at line %d, got %q", ps.cur().line, ps.cur().text)
	}
	return ps.advance().text, nil
}

func (ps *parserState) parseSimpleStmt() (langast.Stmt, error) {
	t := ps.cur()
	if t.kind == tKeyword {
		switch t.text {
		case "pass":
			ps.advance()
			n := &langast.Pass{}
			n.Pos = ps.pos2(t)
			return n, nil
		case "break":
			ps.advance()
			n := &langast.Break{}
			n.Pos = ps.pos2(t)
			return n, nil
		case "continue":
			ps.advance()
			n := &langast.Continue{}
			n.Pos = ps.pos2(t)
			return n, nil
		case "return":
			ps.advance()
			n := &langast.Return{}
			n.Pos = ps.pos2(t)
			if !ps.at(tNewline) && !ps.atOp(";") {
				v, err := ps.parseTestList()
				if err != nil {
					return nil, err
				}
				n.Value = v
			}
			return n, nil
		case "global":
			ps.advance()
			names, err := ps.parseNameListCommas()
			n := &langast.Global{Names: names}
			n.Pos = ps.pos2(t)
			return n, err
		case "nonlocal":
			ps.advance()
			names, err := ps.parseNameListCommas()
			n := &langast.Nonlocal{Names: names}
			n.Pos = ps.pos2(t)
			return n, err
		case "del":
			ps.advance()
			var targets []langast.Expr
			for {
				e, err := ps.parseAtomTrailer()
				if err != nil {
					return nil, err
				}
				targets = append(targets, e)
				if ps.atOp(",") {
					ps.advance()
					continue
				}
				break
			}
			n := &langast.Delete{Targets: targets}
			n.Pos = ps.pos2(t)
			return n, nil
		case "raise":
			ps.advance()
			n := &langast.Raise{}
			n.Pos = ps.pos2(t)
			if !ps.at(tNewline) && !ps.atOp(";") {
				e, err := ps.parseTest()
				if err != nil {
					return nil, err
				}
				n.Exc = e
			}
			return n, nil
		case "import":
			ps.advance()
			names, err := ps.parseDottedNameList()
			n := &langast.Import{Names: names}
			n.Pos = ps.pos2(t)
			return n, err
		case "from":
			ps.advance()
			mod, err := ps.parseDottedName()
			if err != nil {
				return nil, err
			}
			if _, err := ps.expectKw("import"); err != nil {
				return nil, err
			}
			var names []string
			if ps.atOp("*") {
				ps.advance()
				names = []string{"*"}
			} else {
				names, err = ps.parseNameListCommas()
				if err != nil {
					return nil, err
				}
			}
			n := &langast.ImportFrom{Module: mod, Names: names}
			n.Pos = ps.pos2(t)
			return n, nil
		}
	}
	return ps.parseExprOrAssignStmt()
}

func (ps *parserState) parseNameListCommas() ([]string, error) {
	var names []string
	for {
		n, err := ps.expectName()
		if err != nil {
			return nil, err
		}
		names = append(names, n)
		if ps.atOp(",") {
			ps.advance()
			continue
		}
		break
	}
	return names, nil
}

func (ps *parserState) parseDottedName() (string, error) {
	n, err := ps.expectName()
	if err != nil {
		return "", err
	}
	for ps.atOp(".") {
		ps.advance()
		next, err := ps.expectName()
		if err != nil {
			return "", err
		}
		n += "." + next
	}
	return n, nil
}

func (ps *parserState) parseDottedNameList() ([]string, error) {
	var names []string
	for {
		n, err := ps.parseDottedName()
		if err != nil {
			return nil, err
		}
		names = append(names, n)
		if ps.atOp(",") {
			ps.advance()
			continue
		}
		break
	}
	return names, nil
}

// parseExprOrAssignStmt parses an assignment (`target = value`, possibly
// chained `a = b = value`), an augmented assignment, or a bare expression
// statement.
func (ps *parserState) parseExprOrAssignStmt() (langast.Stmt, error) {
	startTok := ps.cur()
	first, err := ps.parseTestList()
	if err != nil {
		return nil, err
	}
	if op := ps.cur(); op.kind == tOp && isAugOp(op.text) {
		ps.advance()
		value, err := ps.parseTestList()
		if err != nil {
			return nil, err
		}
		n := &langast.AugAssign{Target: first, Op: op.text[:len(op.text)-1], Value: value}
		n.Pos = ps.pos2(startTok)
		return n, nil
	}
	if ps.atOp("=") {
		targets := []langast.Expr{first}
		var value langast.Expr
		for ps.atOp("=") {
			ps.advance()
			v, err := ps.parseTestList()
			if err != nil {
				return nil, err
			}
			value = v
			if ps.atOp("=") {
				targets = append(targets, value)
			}
		}
		n := &langast.Assign{Targets: targets, Value: value}
		n.Pos = ps.pos2(startTok)
		return n, nil
	}
	n := &langast.ExprStmt{X: first}
	n.Pos = ps.pos2(startTok)
	return n, nil
}

func isAugOp(s string) bool {
	switch s {
	case "+=", "-=", "*=", "/=", "//=", "%=", "**=":
		return true
	}
	return false
}

// parseTestList parses a comma-separated list of test expressions,
// producing a Tuple whenever a comma follows the first one, including a
// single trailing comma (bare tuple display).
func (ps *parserState) parseTestList() (langast.Expr, error) {
	first, err := ps.parseTest()
	if err != nil {
		return nil, err
	}
	if !ps.atOp(",") {
		return first, nil
	}
	elts := []langast.Expr{first}
	for ps.atOp(",") {
		ps.advance()
		if ps.at(tNewline) || ps.atOp("=") || ps.atOp(":") || ps.at(tEOF) {
			break
		}
		e, err := ps.parseTest()
		if err != nil {
			return nil, err
		}
		elts = append(elts, e)
	}
	t := &langast.Tuple{Elts: elts}
	t.Pos = first.Position()
	return t, nil
}
