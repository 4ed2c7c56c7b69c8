package langparser

import (
	"fmt"
	"strconv"

	"github.com/sandboxkernel/sandboxkernel/pkg/langast"
)

// parseTest: or_test ['if' or_test 'else' test] | lambdef
func (ps *parserState) parseTest() (langast.Expr, error) {
	if ps.atKw("lambda") {
		return ps.parseLambda()
	}
	body, err := ps.parseOrTest()
	if err != nil {
		return nil, err
	}
	if ps.atKw("if") {
		t := ps.advance()
		test, err := ps.parseOrTest()
		if err != nil {
			return nil, err
		}
		if _, err := ps.expectKw("else"); err != nil {
			return nil, err
		}
		orelse, err := ps.parseTest()
		if err != nil {
			return nil, err
		}
		n := &langast.IfExp{Test: test, Body: body, Orelse: orelse}
		n.Pos = ps.pos2(t)
		return n, nil
	}
	return body, nil
}

func (ps *parserState) parseLambda() (langast.Expr, error) {
	t := ps.advance() // 'lambda'
	var args []string
	for !ps.atOp(":") {
		n, err := ps.expectName()
		if err != nil {
			return nil, err
		}
		args = append(args, n)
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
	if _, err := ps.expectOp(":"); err != nil {
		return nil, err
	}
	body, err := ps.parseTest()
	if err != nil {
		return nil, err
	}
	n := &langast.Lambda{Args: args, Body: body}
	n.Pos = ps.pos2(t)
	return n, nil
}

func (ps *parserState) parseOrTest() (langast.Expr, error) {
	first, err := ps.parseAndTest()
	if err != nil {
		return nil, err
	}
	if !ps.atKw("or") {
		return first, nil
	}
	values := []langast.Expr{first}
	for ps.atKw("or") {
		ps.advance()
		next, err := ps.parseAndTest()
		if err != nil {
			return nil, err
		}
		values = append(values, next)
	}
	n := &langast.BoolOp{Op: "or", Values: values}
	n.Pos = first.Position()
	return n, nil
}

func (ps *parserState) parseAndTest() (langast.Expr, error) {
	first, err := ps.parseNotTest()
	if err != nil {
		return nil, err
	}
	if !ps.atKw("and") {
		return first, nil
	}
	values := []langast.Expr{first}
	for ps.atKw("and") {
		ps.advance()
		next, err := ps.parseNotTest()
		if err != nil {
			return nil, err
		}
		values = append(values, next)
	}
	n := &langast.BoolOp{Op: "and", Values: values}
	n.Pos = first.Position()
	return n, nil
}

func (ps *parserState) parseNotTest() (langast.Expr, error) {
	if ps.atKw("not") {
		t := ps.advance()
		x, err := ps.parseNotTest()
		if err != nil {
			return nil, err
		}
		n := &langast.UnaryOp{Op: "not", X: x}
		n.Pos = ps.pos2(t)
		return n, nil
	}
	return ps.parseComparison()
}

var compOps = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

func (ps *parserState) parseComparison() (langast.Expr, error) {
	left, err := ps.parseArith()
	if err != nil {
		return nil, err
	}
	var ops []string
	var comparators []langast.Expr
	for {
		if ps.cur().kind == tOp && compOps[ps.cur().text] {
			ops = append(ops, ps.advance().text)
		} else if ps.atKw("in") {
			ps.advance()
			ops = append(ops, "in")
		} else if ps.atKw("not") {
			save := ps.pos
			ps.advance()
			if ps.atKw("in") {
				ps.advance()
				ops = append(ops, "not in")
			} else {
				ps.pos = save
				break
			}
		} else if ps.atKw("is") {
			ps.advance()
			if ps.atKw("not") {
				ps.advance()
				ops = append(ops, "is not")
			} else {
				ops = append(ops, "is")
			}
		} else {
			break
		}
		next, err := ps.parseArith()
		if err != nil {
			return nil, err
		}
		comparators = append(comparators, next)
	}
	if len(ops) == 0 {
		return left, nil
	}
	n := &langast.Compare{Left: left, Ops: ops, Comparators: comparators}
	n.Pos = left.Position()
	return n, nil
}

func (ps *parserState) parseArith() (langast.Expr, error) {
	left, err := ps.parseTerm()
	if err != nil {
		return nil, err
	}
	for ps.atOp("+") || ps.atOp("-") {
		op := ps.advance()
		right, err := ps.parseTerm()
		if err != nil {
			return nil, err
		}
		n := &langast.BinOp{Op: op.text, Left: left, Right: right}
		n.Pos = left.Position()
		left = n
	}
	return left, nil
}

func (ps *parserState) parseTerm() (langast.Expr, error) {
	left, err := ps.parseFactor()
	if err != nil {
		return nil, err
	}
	for ps.atOp("*") || ps.atOp("/") || ps.atOp("//") || ps.atOp("%") {
		op := ps.advance()
		right, err := ps.parseFactor()
		if err != nil {
			return nil, err
		}
		n := &langast.BinOp{Op: op.text, Left: left, Right: right}
		n.Pos = left.Position()
		left = n
	}
	return left, nil
}

func (ps *parserState) parseFactor() (langast.Expr, error) {
	if ps.atOp("+") || ps.atOp("-") {
		op := ps.advance()
		x, err := ps.parseFactor()
		if err != nil {
			return nil, err
		}
		n := &langast.UnaryOp{Op: op.text, X: x}
		n.Pos = ps.pos2(op)
		return n, nil
	}
	return ps.parsePower()
}

func (ps *parserState) parsePower() (langast.Expr, error) {
	base, err := ps.parseAtomTrailer()
	if err != nil {
		return nil, err
	}
	if ps.atOp("**") {
		ps.advance()
		exp, err := ps.parseFactor()
		if err != nil {
			return nil, err
		}
		n := &langast.BinOp{Op: "**", Left: base, Right: exp}
		n.Pos = base.Position()
		return n, nil
	}
	return base, nil
}

func (ps *parserState) parseAtomTrailer() (langast.Expr, error) {
	x, err := ps.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case ps.atOp("."):
			ps.advance()
			name, err := ps.expectName()
			if err != nil {
				return nil, err
			}
			n := &langast.Attribute{Value: x, Attr: name}
			n.Pos = x.Position()
			x = n
		case ps.atOp("("):
			call, err := ps.parseCallTrailer(x)
			if err != nil {
				return nil, err
			}
			x = call
		case ps.atOp("["):
			ps.advance()
			idx, err := ps.parseTestList()
			if err != nil {
				return nil, err
			}
			if _, err := ps.expectOp("]"); err != nil {
				return nil, err
			}
			n := &langast.Subscript{Value: x, Index: idx}
			n.Pos = x.Position()
			x = n
		default:
			return x, nil
		}
	}
}

func (ps *parserState) parseCallTrailer(fn langast.Expr) (langast.Expr, error) {
	ps.advance() // '('
	n := &langast.Call{Func: fn, Kwargs: map[string]langast.Expr{}}
	n.Pos = fn.Position()
	for !ps.atOp(")") {
		if ps.at(tName) && ps.toks[ps.pos+1].kind == tOp && ps.toks[ps.pos+1].text == "=" {
			name := ps.advance().text
			ps.advance() // '='
			v, err := ps.parseTest()
			if err != nil {
				return nil, err
			}
			n.Kwargs[name] = v
		} else {
			v, err := ps.parseTest()
			if err != nil {
				return nil, err
			}
			n.Args = append(n.Args, v)
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
	return n, nil
}

func (ps *parserState) parseAtom() (langast.Expr, error) {
	t := ps.cur()
	switch {
	case t.kind == tName:
		ps.advance()
		n := &langast.Name{Id: t.text}
		n.Pos = ps.pos2(t)
		return n, nil
	case t.kind == tKeyword && t.text == "True":
		ps.advance()
		n := &langast.Constant{CKind: langast.ConstBool, Bool: true}
		n.Pos = ps.pos2(t)
		return n, nil
	case t.kind == tKeyword && t.text == "False":
		ps.advance()
		n := &langast.Constant{CKind: langast.ConstBool, Bool: false}
		n.Pos = ps.pos2(t)
		return n, nil
	case t.kind == tKeyword && t.text == "None":
		ps.advance()
		n := &langast.Constant{CKind: langast.ConstNone}
		n.Pos = ps.pos2(t)
		return n, nil
	case t.kind == tInt:
		ps.advance()
		v, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad integer literal %q at line %d", t.text, t.line)
		}
		n := &langast.Constant{CKind: langast.ConstInt, Int: v}
		n.Pos = ps.pos2(t)
		return n, nil
	case t.kind == tFloat:
		ps.advance()
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad float literal %q at line %d", t.text, t.line)
		}
		n := &langast.Constant{CKind: langast.ConstFloat, Float: v}
		n.Pos = ps.pos2(t)
		return n, nil
	case t.kind == tString:
		ps.advance()
		n := &langast.Constant{CKind: langast.ConstString, Str: t.text}
		n.Pos = ps.pos2(t)
		return n, nil
	case t.kind == tKeyword && t.text == "yield":
		ps.advance()
		n := &langast.Yield{}
		n.Pos = ps.pos2(t)
		if !ps.at(tNewline) && !ps.atOp(")") {
			v, err := ps.parseTest()
			if err != nil {
				return nil, err
			}
			n.Value = v
		}
		return n, nil
	case t.kind == tKeyword && t.text == "await":
		ps.advance()
		v, err := ps.parseTest()
		if err != nil {
			return nil, err
		}
		n := &langast.Await{Value: v}
		n.Pos = ps.pos2(t)
		return n, nil
	case t.kind == tOp && t.text == "(":
		return ps.parseParenExpr()
	case t.kind == tOp && t.text == "[":
		return ps.parseListExpr()
	case t.kind == tOp && t.text == "{":
		return ps.parseBraceExpr()
	}
	return nil, fmt.Errorf("unexpected token %q at line %d col %d", t.text, t.line, t.col)
}

func (ps *parserState) parseParenExpr() (langast.Expr, error) {
	t := ps.advance() // '('
	if ps.atOp(")") {
		ps.advance()
		n := &langast.Tuple{}
		n.Pos = ps.pos2(t)
		return n, nil
	}
	first, err := ps.parseTest()
	if err != nil {
		return nil, err
	}
	if ps.atKw("for") {
		gens, err := ps.parseComprehensions()
		if err != nil {
			return nil, err
		}
		if _, err := ps.expectOp(")"); err != nil {
			return nil, err
		}
		n := &langast.GeneratorExp{Elt: first, Generators: gens}
		n.Pos = ps.pos2(t)
		return n, nil
	}
	if ps.atOp(",") {
		elts := []langast.Expr{first}
		for ps.atOp(",") {
			ps.advance()
			if ps.atOp(")") {
				break
			}
			e, err := ps.parseTest()
			if err != nil {
				return nil, err
			}
			elts = append(elts, e)
		}
		if _, err := ps.expectOp(")"); err != nil {
			return nil, err
		}
		n := &langast.Tuple{Elts: elts}
		n.Pos = ps.pos2(t)
		return n, nil
	}
	if _, err := ps.expectOp(")"); err != nil {
		return nil, err
	}
	return first, nil
}

func (ps *parserState) parseListExpr() (langast.Expr, error) {
	t := ps.advance() // '['
	if ps.atOp("]") {
		ps.advance()
		n := &langast.List{}
		n.Pos = ps.pos2(t)
		return n, nil
	}
	first, err := ps.parseTest()
	if err != nil {
		return nil, err
	}
	if ps.atKw("for") {
		gens, err := ps.parseComprehensions()
		if err != nil {
			return nil, err
		}
		if _, err := ps.expectOp("]"); err != nil {
			return nil, err
		}
		n := &langast.ListComp{Elt: first, Generators: gens}
		n.Pos = ps.pos2(t)
		return n, nil
	}
	elts := []langast.Expr{first}
	for ps.atOp(",") {
		ps.advance()
		if ps.atOp("]") {
			break
		}
		e, err := ps.parseTest()
		if err != nil {
			return nil, err
		}
		elts = append(elts, e)
	}
	if _, err := ps.expectOp("]"); err != nil {
		return nil, err
	}
	n := &langast.List{Elts: elts}
	n.Pos = ps.pos2(t)
	return n, nil
}

func (ps *parserState) parseBraceExpr() (langast.Expr, error) {
	t := ps.advance() // '{'
	if ps.atOp("}") {
		ps.advance()
		n := &langast.Dict{}
		n.Pos = ps.pos2(t)
		return n, nil
	}
	firstKey, err := ps.parseTest()
	if err != nil {
		return nil, err
	}
	if ps.atOp(":") {
		ps.advance()
		firstVal, err := ps.parseTest()
		if err != nil {
			return nil, err
		}
		if ps.atKw("for") {
			gens, err := ps.parseComprehensions()
			if err != nil {
				return nil, err
			}
			if _, err := ps.expectOp("}"); err != nil {
				return nil, err
			}
			n := &langast.DictComp{Key: firstKey, Value: firstVal, Generators: gens}
			n.Pos = ps.pos2(t)
			return n, nil
		}
		entries := []langast.DictEntry{{Key: firstKey, Value: firstVal}}
		for ps.atOp(",") {
			ps.advance()
			if ps.atOp("}") {
				break
			}
			k, err := ps.parseTest()
			if err != nil {
				return nil, err
			}
			if _, err := ps.expectOp(":"); err != nil {
				return nil, err
			}
			v, err := ps.parseTest()
			if err != nil {
				return nil, err
			}
			entries = append(entries, langast.DictEntry{Key: k, Value: v})
		}
		if _, err := ps.expectOp("}"); err != nil {
			return nil, err
		}
		n := &langast.Dict{Entries: entries}
		n.Pos = ps.pos2(t)
		return n, nil
	}
	if ps.atKw("for") {
		gens, err := ps.parseComprehensions()
		if err != nil {
			return nil, err
		}
		if _, err := ps.expectOp("}"); err != nil {
			return nil, err
		}
		n := &langast.SetComp{Elt: firstKey, Generators: gens}
		n.Pos = ps.pos2(t)
		return n, nil
	}
	elts := []langast.Expr{firstKey}
	for ps.atOp(",") {
		ps.advance()
		if ps.atOp("}") {
			break
		}
		e, err := ps.parseTest()
		if err != nil {
			return nil, err
		}
		elts = append(elts, e)
	}
	if _, err := ps.expectOp("}"); err != nil {
		return nil, err
	}
	n := &langast.Set{Elts: elts}
	n.Pos = ps.pos2(t)
	return n, nil
}

func (ps *parserState) parseComprehensions() ([]langast.Comprehension, error) {
	var gens []langast.Comprehension
	for ps.atKw("for") {
		ps.advance()
		target, err := ps.parseAtomTrailer()
		if err != nil {
			return nil, err
		}
		if _, err := ps.expectKw("in"); err != nil {
			return nil, err
		}
		iter, err := ps.parseOrTest()
		if err != nil {
			return nil, err
		}
		comp := langast.Comprehension{Target: target, Iter: iter}
		for ps.atKw("if") {
			ps.advance()
			cond, err := ps.parseOrTest()
			if err != nil {
				return nil, err
			}
			comp.Ifs = append(comp.Ifs, cond)
		}
		gens = append(gens, comp)
	}
	return gens, nil
}
