package worker

import (
	"strings"

	"github.com/sandboxkernel/sandboxkernel/pkg/result"
	"github.com/sandboxkernel/sandboxkernel/pkg/sandboxerr"
)

// errInfo translates a pipeline-stage error into the wire ErrorInfo shape,
// mirroring errinfo()/_code_excerpt()/runtime_location(): when err carries a
// source location (policy errors always do; runtime errors do when the
// evaluator attached one; parse errors from langparser carry none), the
// matching source line and a caret
// string pointing at the column are attached.
func errInfo(stage string, err error, code string) *result.ErrorInfo {
	info := &result.ErrorInfo{
		Stage:   stage,
		Type:    errType(err),
		Message: err.Error(),
	}

	var se *sandboxerr.SandboxError
	switch e := err.(type) {
	case *sandboxerr.SandboxError:
		se = e
	case *sandboxerr.StepLimitError:
		se = e.SandboxError
	case *sandboxerr.CapabilityBudgetError:
		se = e.SandboxError
	}
	if se != nil && se.Lineno != nil {
		info.Lineno = se.Lineno
		col := 1
		if se.Col != nil {
			col = *se.Col
		}
		info.Col = &col
		excerpt, caret := codeExcerpt(code, *se.Lineno, col)
		info.Excerpt = excerpt
		info.Caret = caret
	}
	return info
}

func errType(err error) string {
	switch err.(type) {
	case *sandboxerr.StepLimitError:
		return "StepLimitError"
	case *sandboxerr.CapabilityBudgetError:
		return "CapabilityBudgetError"
	case *sandboxerr.SandboxError:
		return "SandboxError"
	default:
		return "Error"
	}
}

// codeExcerpt extracts the source line at the 1-based lineno and a
// " "*col-1 + "^" caret string pointing at col, mirroring _code_excerpt.
func codeExcerpt(code string, lineno, col int) (*string, *string) {
	lines := strings.Split(code, "\n")
	if lineno < 1 || lineno > len(lines) {
		return nil, nil
	}
	line := lines[lineno-1]
	if col < 1 {
		col = 1
	}
	caret := strings.Repeat(" ", col-1) + "^"
	return &line, &caret
}
