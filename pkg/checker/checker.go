// Package checker implements the static policy checker (§4.C): a
// single-pass walk over a parsed program that rejects disallowed syntax,
// suspicious constant allocations, and out-of-budget AST shapes before any
// evaluation is attempted.
package checker

import (
	"fmt"

	"github.com/sandboxkernel/sandboxkernel/pkg/langast"
	"github.com/sandboxkernel/sandboxkernel/pkg/policy"
	"github.com/sandboxkernel/sandboxkernel/pkg/sandboxerr"
)

// Checker walks a Program exactly once, per §4.C, tracking node count, loop
// and comprehension nesting depth, and the set of bare names known to be
// bound to a permitted loop iterable (for allow_loop_iter_names).
type Checker struct {
	p         *policy.Policy
	nodeCount int
	loopDepth int
	compDepth int
	iterNames map[string]struct{}
}

// New builds a Checker for p, optionally seeded with names already known to
// be bound to permitted iterables (e.g. from a prior run's carried-over
// locals; the reference worker always starts with an empty set).
func New(p *policy.Policy, knownIterNames map[string]struct{}) *Checker {
	names := map[string]struct{}{}
	for k := range knownIterNames {
		names[k] = struct{}{}
	}
	return &Checker{p: p, iterNames: names}
}

// Check walks prog and returns a *sandboxerr.SandboxError on the first
// violation encountered, in traversal order, nil otherwise.
func Check(p *policy.Policy, prog *langast.Program) error {
	c := New(p, nil)
	if err := c.count(prog); err != nil {
		return err
	}
	return c.checkBody(prog.Body)
}

func (c *Checker) deny(msg string, n langast.Node) error {
	pos := n.Position()
	return sandboxerr.At(msg, pos.Line, pos.Col)
}

// count increments the node counter for n and enforces max_ast_nodes,
// mirroring ast_checker.py's generic_visit override which counts on every
// node including ones with dedicated visit_* handlers.
func (c *Checker) count(n langast.Node) error {
	c.nodeCount++
	if c.nodeCount > c.p.MaxASTNodes {
		return c.deny("AST node limit exceeded", n)
	}
	return nil
}

func (c *Checker) checkBody(body []langast.Stmt) error {
	for _, s := range body {
		if err := c.checkStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) checkStmt(s langast.Stmt) error {
	if err := c.count(s); err != nil {
		return err
	}
	switch n := s.(type) {
	case *langast.Import:
		return c.deny("import is not allowed", n)
	case *langast.ImportFrom:
		return c.deny("import is not allowed", n)
	case *langast.Global:
		return c.deny("global is not allowed", n)
	case *langast.Nonlocal:
		return c.deny("nonlocal is not allowed", n)
	case *langast.Delete:
		return c.deny("del is not allowed", n)
	case *langast.Raise:
		return c.deny("raise is not allowed", n)
	case *langast.ClassDef:
		if !c.p.AllowClass {
			return c.deny("class is not allowed", n)
		}
		return c.checkBody(n.Body)
	case *langast.FunctionDef:
		if !c.p.AllowDef {
			return c.deny("def is not allowed", n)
		}
		return c.checkBody(n.Body)
	case *langast.Try:
		if !c.p.AllowTry {
			return c.deny("try/except is not allowed", n)
		}
		if err := c.checkBody(n.Body); err != nil {
			return err
		}
		if err := c.checkBody(n.Handlers); err != nil {
			return err
		}
		if err := c.checkBody(n.Orelse); err != nil {
			return err
		}
		return c.checkBody(n.Finally)
	case *langast.With:
		if !c.p.AllowWith {
			return c.deny("with is not allowed", n)
		}
		for _, item := range n.Items {
			if err := c.checkExpr(item); err != nil {
				return err
			}
		}
		return c.checkBody(n.Body)
	case *langast.Assign:
		return c.checkAssign(n)
	case *langast.AugAssign:
		if err := c.checkExpr(n.Target); err != nil {
			return err
		}
		return c.checkExpr(n.Value)
	case *langast.ExprStmt:
		return c.checkExpr(n.X)
	case *langast.Return:
		if n.Value != nil {
			return c.checkExpr(n.Value)
		}
		return nil
	case *langast.If:
		if err := c.checkExpr(n.Test); err != nil {
			return err
		}
		if err := c.checkBody(n.Body); err != nil {
			return err
		}
		return c.checkBody(n.Orelse)
	case *langast.For:
		return c.checkFor(n)
	case *langast.While:
		return c.checkWhile(n)
	case *langast.Pass, *langast.Break, *langast.Continue:
		return nil
	default:
		return fmt.Errorf("checker: unhandled statement node %T", s)
	}
}

func (c *Checker) checkAssign(n *langast.Assign) error {
	if len(n.Targets) == 1 {
		if name, ok := n.Targets[0].(*langast.Name); ok {
			if c.isAllowedIter(n.Value) {
				c.iterNames[name.Id] = struct{}{}
			} else {
				delete(c.iterNames, name.Id)
			}
		}
	}
	for _, t := range n.Targets {
		if err := c.checkExpr(t); err != nil {
			return err
		}
	}
	return c.checkExpr(n.Value)
}

func (c *Checker) checkFor(n *langast.For) error {
	if !c.p.AllowLoops {
		return c.deny("loops are not allowed", n)
	}
	if c.p.RestrictLoopIterables && !c.isAllowedIter(n.Iter) {
		return c.deny("loop iterable is not allowed", n)
	}
	c.loopDepth++
	if c.loopDepth > c.p.MaxLoopNesting {
		return c.deny("loop nesting too deep", n)
	}
	defer func() { c.loopDepth-- }()
	if err := c.checkExpr(n.Target); err != nil {
		return err
	}
	if err := c.checkExpr(n.Iter); err != nil {
		return err
	}
	if err := c.checkBody(n.Body); err != nil {
		return err
	}
	return c.checkBody(n.Orelse)
}

func (c *Checker) checkWhile(n *langast.While) error {
	if !c.p.AllowLoops {
		return c.deny("loops are not allowed", n)
	}
	c.loopDepth++
	if c.loopDepth > c.p.MaxLoopNesting {
		return c.deny("loop nesting too deep", n)
	}
	defer func() { c.loopDepth-- }()
	if err := c.checkExpr(n.Test); err != nil {
		return err
	}
	if err := c.checkBody(n.Body); err != nil {
		return err
	}
	return c.checkBody(n.Orelse)
}

func isDunder(name string) bool {
	return len(name) >= 4 && name[:2] == "__" && name[len(name)-2:] == "__"
}

func (c *Checker) checkExpr(e langast.Expr) error {
	if e == nil {
		return nil
	}
	if err := c.count(e); err != nil {
		return err
	}
	switch n := e.(type) {
	case *langast.Name:
		if isDunder(n.Id) {
			if _, ok := c.p.AllowDunderNames[n.Id]; !ok {
				return c.deny("dunder names are not allowed", n)
			}
		}
		return nil
	case *langast.Constant:
		return nil
	case *langast.Yield:
		return c.deny("yield is not allowed", n)
	case *langast.Await:
		return c.deny("await is not allowed", n)
	case *langast.Lambda:
		if !c.p.AllowLambda {
			return c.deny("lambda is not allowed", n)
		}
		return c.checkExpr(n.Body)
	case *langast.UnaryOp:
		return c.checkExpr(n.X)
	case *langast.BinOp:
		return c.checkBinOp(n)
	case *langast.BoolOp:
		for _, v := range n.Values {
			if err := c.checkExpr(v); err != nil {
				return err
			}
		}
		return nil
	case *langast.Compare:
		if err := c.checkExpr(n.Left); err != nil {
			return err
		}
		for _, v := range n.Comparators {
			if err := c.checkExpr(v); err != nil {
				return err
			}
		}
		return nil
	case *langast.Call:
		return c.checkCall(n)
	case *langast.Attribute:
		return c.checkAttribute(n)
	case *langast.Subscript:
		if !c.p.AllowSubscript {
			return c.deny("subscript is not allowed", n)
		}
		if err := c.checkExpr(n.Value); err != nil {
			return err
		}
		return c.checkExpr(n.Index)
	case *langast.List:
		if len(n.Elts) > c.p.MaxLiteralElems {
			return c.deny("literal too large", n)
		}
		return c.checkExprs(n.Elts)
	case *langast.Tuple:
		if len(n.Elts) > c.p.MaxLiteralElems {
			return c.deny("literal too large", n)
		}
		return c.checkExprs(n.Elts)
	case *langast.Set:
		if len(n.Elts) > c.p.MaxLiteralElems {
			return c.deny("literal too large", n)
		}
		return c.checkExprs(n.Elts)
	case *langast.Dict:
		if len(n.Entries) > c.p.MaxLiteralElems {
			return c.deny("literal too large", n)
		}
		for _, ent := range n.Entries {
			if err := c.checkExpr(ent.Key); err != nil {
				return err
			}
			if err := c.checkExpr(ent.Value); err != nil {
				return err
			}
		}
		return nil
	case *langast.ListComp:
		return c.checkComp(n, n.Elt, nil, n.Generators)
	case *langast.SetComp:
		return c.checkComp(n, n.Elt, nil, n.Generators)
	case *langast.GeneratorExp:
		return c.checkComp(n, n.Elt, nil, n.Generators)
	case *langast.DictComp:
		return c.checkComp(n, n.Key, n.Value, n.Generators)
	case *langast.IfExp:
		if err := c.checkExpr(n.Test); err != nil {
			return err
		}
		if err := c.checkExpr(n.Body); err != nil {
			return err
		}
		return c.checkExpr(n.Orelse)
	default:
		return fmt.Errorf("checker: unhandled expression node %T", e)
	}
}

func (c *Checker) checkExprs(es []langast.Expr) error {
	for _, e := range es {
		if err := c.checkExpr(e); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) checkComp(n langast.Node, elt, val langast.Expr, gens []langast.Comprehension) error {
	if !c.p.AllowComprehension {
		return c.deny("comprehension is not allowed", n)
	}
	c.compDepth++
	if c.compDepth > c.p.MaxCompNesting {
		return c.deny("comprehension nesting too deep", n)
	}
	defer func() { c.compDepth-- }()
	if c.p.RestrictLoopIterables {
		for _, g := range gens {
			if !c.isAllowedIter(g.Iter) {
				return c.deny("comprehension iterable is not allowed", n)
			}
		}
	}
	for _, g := range gens {
		if err := c.checkExpr(g.Target); err != nil {
			return err
		}
		if err := c.checkExpr(g.Iter); err != nil {
			return err
		}
		for _, cond := range g.Ifs {
			if err := c.checkExpr(cond); err != nil {
				return err
			}
		}
	}
	if err := c.checkExpr(elt); err != nil {
		return err
	}
	return c.checkExpr(val)
}

func (c *Checker) checkAttribute(n *langast.Attribute) error {
	if isDunder(n.Attr) {
		return c.deny("dunder attribute is not allowed", n)
	}
	root, ok := n.Value.(*langast.Name)
	if !ok {
		return c.deny("only root.attr attribute access is allowed", n)
	}
	allowed, ok := c.p.AttrAllowlist[root.Id]
	if !ok {
		return c.deny(fmt.Sprintf("attribute '%s.%s' is not allowed", root.Id, n.Attr), n)
	}
	if _, ok := allowed[n.Attr]; !ok {
		return c.deny(fmt.Sprintf("attribute '%s.%s' is not allowed", root.Id, n.Attr), n)
	}
	return c.checkExpr(n.Value)
}

func (c *Checker) checkCall(n *langast.Call) error {
	switch fn := n.Func.(type) {
	case *langast.Name:
		if _, ok := c.p.CallNameAllowlist[fn.Id]; !ok {
			return c.deny(fmt.Sprintf("call '%s' is not allowed", fn.Id), n)
		}
		if (fn.Id == "list" || fn.Id == "tuple") && len(n.Args) > 0 {
			if call0, ok := n.Args[0].(*langast.Call); ok {
				if rangeFn, ok := call0.Func.(*langast.Name); ok && rangeFn.Id == "range" {
					if size, ok := c.rangeSize(call0); ok && size > c.p.MaxConstAllocElems {
						return c.deny("suspicious constant allocation", n)
					}
				}
			}
		}
	case *langast.Attribute:
		// root.attr(...) — validated by checkAttribute via checkExpr below.
	default:
		return c.deny("only f(...) or root.attr(...) calls are allowed", n)
	}
	if err := c.checkExpr(n.Func); err != nil {
		return err
	}
	if err := c.checkExprs(n.Args); err != nil {
		return err
	}
	for _, v := range n.Kwargs {
		if err := c.checkExpr(v); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) checkBinOp(n *langast.BinOp) error {
	if n.Op == "*" {
		aLen, aLenOK := c.constLen(n.Left)
		bLen, bLenOK := c.constLen(n.Right)
		aInt, aIntOK := c.constInt(n.Left)
		bInt, bIntOK := c.constInt(n.Right)
		if aLenOK && bIntOK && aLen*bInt > c.p.MaxConstAllocElems {
			return c.deny("suspicious constant allocation", n)
		}
		if bLenOK && aIntOK && bLen*aInt > c.p.MaxConstAllocElems {
			return c.deny("suspicious constant allocation", n)
		}
	}
	if err := c.checkExpr(n.Left); err != nil {
		return err
	}
	return c.checkExpr(n.Right)
}

// isAllowedIter mirrors ast_checker.py's _is_allowed_iter.
func (c *Checker) isAllowedIter(e langast.Expr) bool {
	switch n := e.(type) {
	case *langast.Name:
		if c.p.AllowLoopIterNames {
			_, ok := c.iterNames[n.Id]
			return ok
		}
		return false
	case *langast.Call:
		if fn, ok := n.Func.(*langast.Name); ok {
			_, ok := c.p.LoopIterAllowlist[fn.Id]
			return ok
		}
		return false
	case *langast.List, *langast.Tuple:
		return c.p.AllowLoopIterLiterals
	}
	return false
}

// constInt mirrors ast_checker.py's _const_int: constant folding over
// unary +/- and binary + - * // **, with ** flagged as "huge" (returning
// max_const_alloc_elems+1, a sentinel guaranteed to exceed the limit) when
// |base| >= 2 and exp > 30 — see SPEC_FULL.md §5.
func (c *Checker) constInt(e langast.Expr) (int64, bool) {
	switch n := e.(type) {
	case *langast.Constant:
		if n.CKind == langast.ConstInt {
			return n.Int, true
		}
		return 0, false
	case *langast.UnaryOp:
		if n.Op != "+" && n.Op != "-" {
			return 0, false
		}
		v, ok := c.constInt(n.X)
		if !ok {
			return 0, false
		}
		if n.Op == "-" {
			return -v, true
		}
		return v, true
	case *langast.BinOp:
		a, aok := c.constInt(n.Left)
		b, bok := c.constInt(n.Right)
		if !aok || !bok {
			return 0, false
		}
		switch n.Op {
		case "+":
			return a + b, true
		case "-":
			return a - b, true
		case "*":
			return a * b, true
		case "//":
			if b == 0 {
				return 0, false
			}
			return floorDiv(a, b), true
		case "**":
			if b < 0 {
				return 0, false
			}
			if abs64(a) >= 2 && b > 30 {
				return int64(c.p.MaxConstAllocElems) + 1, true
			}
			return ipow(a, b), true
		}
	}
	return 0, false
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func ipow(base, exp int64) int64 {
	var r int64 = 1
	for i := int64(0); i < exp; i++ {
		r *= base
	}
	return r
}

// constLen mirrors _const_len: the element/character count of a literal
// list/tuple or string constant; ok is false for anything else.
func (c *Checker) constLen(e langast.Expr) (int64, bool) {
	switch n := e.(type) {
	case *langast.List:
		return int64(len(n.Elts)), true
	case *langast.Tuple:
		return int64(len(n.Elts)), true
	case *langast.Constant:
		if n.CKind == langast.ConstString {
			return int64(len(n.Str)), true
		}
	}
	return 0, false
}

// rangeSize mirrors _range_size's 1/2/3-argument stepping arithmetic,
// including negative/zero-step handling.
func (c *Checker) rangeSize(call *langast.Call) (int64, bool) {
	args := call.Args
	switch len(args) {
	case 1:
		stop, ok := c.constInt(args[0])
		if !ok {
			return 0, false
		}
		if stop < 0 {
			return 0, true
		}
		return stop, true
	case 2, 3:
		start, ok1 := c.constInt(args[0])
		stop, ok2 := c.constInt(args[1])
		step := int64(1)
		ok3 := true
		if len(args) == 3 {
			step, ok3 = c.constInt(args[2])
		}
		if !ok1 || !ok2 || !ok3 || step == 0 {
			return 0, false
		}
		var adj int64
		if step > 0 {
			adj = step - 1
		} else {
			adj = step + 1
		}
		n := (stop - start + adj) / step
		if n < 0 {
			return 0, true
		}
		return n, true
	}
	return 0, false
}
