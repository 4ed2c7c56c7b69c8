// Package evaluator implements the reference tree-walking evaluator for
// the embedded dialect's core expression/statement subset (§4.F step 12):
// assignment, for/while, comprehensions, literals, calls, attribute/
// subscript access, and the boolean/arithmetic/comparison operators.
//
// def/lambda/class/try/with are recognised (the checker fully gates them)
// but only partly executed here: def and class bind a placeholder string
// under their name, lambda evaluates to a placeholder string, and try/with
// run their main body only (except handlers, else/finally clauses and
// with-items are not evaluated). A deployment that enables
// allow_def/allow_lambda/allow_class/allow_try/allow_with is expected to
// supply its own Evaluator.
package evaluator

import (
	"context"
	"fmt"

	"github.com/sandboxkernel/sandboxkernel/pkg/langast"
	"github.com/sandboxkernel/sandboxkernel/pkg/sandboxerr"
)

// StepCounter is ticked once per statement, once per call expression, once
// per while-loop test and once per comprehension item; it returns a non-nil error (typically *sandboxerr.StepLimitError) once
// the run has taken too many steps.
type StepCounter interface {
	Step() error
}

// Env is the evaluation environment: Globals holds safe builtins, root
// proxies, and capability wrappers installed by the worker; Locals is the
// single flat scope the program's top-level statements read and write.
type Env struct {
	Globals map[string]any
	Locals  map[string]any
}

// NewEnv builds an Env with an empty Locals scope.
func NewEnv(globals map[string]any) *Env {
	return &Env{Globals: globals, Locals: map[string]any{}}
}

func (e *Env) lookup(name string) (any, bool) {
	if v, ok := e.Locals[name]; ok {
		return v, true
	}
	v, ok := e.Globals[name]
	return v, ok
}

// Evaluator is the interface pkg/worker drives program execution through.
type Evaluator interface {
	Eval(ctx context.Context, prog *langast.Program, env *Env, steps StepCounter) (map[string]any, error)
}

// TreeWalker is the reference Evaluator implementation.
type TreeWalker struct{}

func New() *TreeWalker { return &TreeWalker{} }

func (TreeWalker) Eval(ctx context.Context, prog *langast.Program, env *Env, steps StepCounter) (map[string]any, error) {
	if _, err := execStmts(ctx, prog.Body, env, steps); err != nil {
		return env.Locals, err
	}
	return env.Locals, nil
}

type ctrlKind int

const (
	ctrlNone ctrlKind = iota
	ctrlBreak
	ctrlContinue
	ctrlReturn
)

type ctrl struct {
	kind  ctrlKind
	value any
}

var noCtrl = ctrl{kind: ctrlNone}

func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func execStmts(ctx context.Context, stmts []langast.Stmt, env *Env, steps StepCounter) (ctrl, error) {
	for _, s := range stmts {
		c, err := execStmt(ctx, s, env, steps)
		if err != nil {
			return noCtrl, err
		}
		if c.kind != ctrlNone {
			return c, nil
		}
	}
	return noCtrl, nil
}

func execStmt(ctx context.Context, stmt langast.Stmt, env *Env, steps StepCounter) (ctrl, error) {
	if err := checkCtx(ctx); err != nil {
		return noCtrl, err
	}
	if err := steps.Step(); err != nil {
		return noCtrl, err
	}

	switch n := stmt.(type) {
	case *langast.ExprStmt:
		_, err := evalExpr(ctx, n.X, env, steps)
		return noCtrl, err

	case *langast.Assign:
		v, err := evalExpr(ctx, n.Value, env, steps)
		if err != nil {
			return noCtrl, err
		}
		for _, target := range n.Targets {
			if err := assignTo(ctx, target, v, env, steps); err != nil {
				return noCtrl, err
			}
		}
		return noCtrl, nil

	case *langast.AugAssign:
		name, ok := n.Target.(*langast.Name)
		if !ok {
			return noCtrl, sandboxerr.New("augmented assignment target must be a name")
		}
		cur, ok := env.lookup(name.Id)
		if !ok {
			return noCtrl, sandboxerr.New(fmt.Sprintf("name '%s' is not defined", name.Id))
		}
		rhs, err := evalExpr(ctx, n.Value, env, steps)
		if err != nil {
			return noCtrl, err
		}
		result, err := applyBinOp(n.Op, cur, rhs)
		if err != nil {
			return noCtrl, err
		}
		env.Locals[name.Id] = result
		return noCtrl, nil

	case *langast.If:
		test, err := evalExpr(ctx, n.Test, env, steps)
		if err != nil {
			return noCtrl, err
		}
		if truthy(test) {
			return execStmts(ctx, n.Body, env, steps)
		}
		return execStmts(ctx, n.Orelse, env, steps)

	case *langast.For:
		return execFor(ctx, n, env, steps)

	case *langast.While:
		return execWhile(ctx, n, env, steps)

	case *langast.Pass:
		return noCtrl, nil
	case *langast.Break:
		return ctrl{kind: ctrlBreak}, nil
	case *langast.Continue:
		return ctrl{kind: ctrlContinue}, nil
	case *langast.Return:
		var v any
		if n.Value != nil {
			var err error
			v, err = evalExpr(ctx, n.Value, env, steps)
			if err != nil {
				return noCtrl, err
			}
		}
		return ctrl{kind: ctrlReturn, value: v}, nil

	case *langast.FunctionDef:
		env.Locals[n.Name] = fmt.Sprintf("<function %s>", n.Name)
		return noCtrl, nil
	case *langast.ClassDef:
		env.Locals[n.Name] = fmt.Sprintf("<class %s>", n.Name)
		return noCtrl, nil

	case *langast.Try:
		return execStmts(ctx, n.Body, env, steps)
	case *langast.With:
		return execStmts(ctx, n.Body, env, steps)

	default:
		return noCtrl, sandboxerr.New(fmt.Sprintf("evaluator: unsupported statement %T", stmt))
	}
}

func execFor(ctx context.Context, n *langast.For, env *Env, steps StepCounter) (ctrl, error) {
	iterVal, err := evalExpr(ctx, n.Iter, env, steps)
	if err != nil {
		return noCtrl, err
	}
	items, err := iterate(iterVal)
	if err != nil {
		return noCtrl, err
	}
	for _, item := range items {
		if err := assignTo(ctx, n.Target, item, env, steps); err != nil {
			return noCtrl, err
		}
		c, err := execStmts(ctx, n.Body, env, steps)
		if err != nil {
			return noCtrl, err
		}
		if c.kind == ctrlBreak {
			return noCtrl, nil
		}
		if c.kind == ctrlReturn {
			return c, nil
		}
	}
	return execStmts(ctx, n.Orelse, env, steps)
}

func execWhile(ctx context.Context, n *langast.While, env *Env, steps StepCounter) (ctrl, error) {
	for {
		if err := steps.Step(); err != nil {
			return noCtrl, err
		}
		test, err := evalExpr(ctx, n.Test, env, steps)
		if err != nil {
			return noCtrl, err
		}
		if !truthy(test) {
			break
		}
		c, err := execStmts(ctx, n.Body, env, steps)
		if err != nil {
			return noCtrl, err
		}
		if c.kind == ctrlBreak {
			return noCtrl, nil
		}
		if c.kind == ctrlReturn {
			return c, nil
		}
	}
	return execStmts(ctx, n.Orelse, env, steps)
}

// assignTo binds v to target: a bare Name, or a Tuple/List of Names for
// unpacking assignment (`a, b = 1, 2`).
func assignTo(ctx context.Context, target langast.Expr, v any, env *Env, steps StepCounter) error {
	switch t := target.(type) {
	case *langast.Name:
		env.Locals[t.Id] = v
		return nil
	case *langast.Tuple:
		return assignUnpack(ctx, t.Elts, v, env, steps)
	case *langast.List:
		return assignUnpack(ctx, t.Elts, v, env, steps)
	case *langast.Subscript:
		return assignSubscript(ctx, t, v, env, steps)
	default:
		return sandboxerr.New("unsupported assignment target")
	}
}

func assignUnpack(ctx context.Context, targets []langast.Expr, v any, env *Env, steps StepCounter) error {
	items, err := iterate(v)
	if err != nil {
		return err
	}
	if len(items) != len(targets) {
		return sandboxerr.New(fmt.Sprintf("cannot unpack %d values into %d targets", len(items), len(targets)))
	}
	for i, target := range targets {
		if err := assignTo(ctx, target, items[i], env, steps); err != nil {
			return err
		}
	}
	return nil
}

func assignSubscript(ctx context.Context, t *langast.Subscript, v any, env *Env, steps StepCounter) error {
	container, err := evalExpr(ctx, t.Value, env, steps)
	if err != nil {
		return err
	}
	idx, err := evalExpr(ctx, t.Index, env, steps)
	if err != nil {
		return err
	}
	switch c := container.(type) {
	case []any:
		i, err := asIndex(idx, len(c))
		if err != nil {
			return err
		}
		c[i] = v
		return nil
	case map[string]any:
		key, ok := idx.(string)
		if !ok {
			return sandboxerr.New("dict keys must be strings")
		}
		c[key] = v
		return nil
	default:
		return sandboxerr.New("value is not subscriptable for assignment")
	}
}
