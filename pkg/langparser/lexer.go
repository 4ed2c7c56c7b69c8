package langparser

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tEOF tokenKind = iota
	tNewline
	tIndent
	tDedent
	tName
	tInt
	tFloat
	tString
	tOp
	tKeyword
)

type token struct {
	kind tokenKind
	text string
	line int
	col  int // 1-based
}

var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "is": true,
	"if": true, "elif": true, "else": true, "for": true, "while": true,
	"def": true, "class": true, "lambda": true, "return": true,
	"try": true, "except": true, "finally": true, "with": true, "as": true,
	"import": true, "from": true, "global": true, "nonlocal": true,
	"del": true, "raise": true, "pass": true, "break": true, "continue": true,
	"True": true, "False": true, "None": true, "yield": true, "await": true,
	"async": true,
}

// lex tokenizes dialect source using Python-style significant indentation:
// consistent run of INDENT/DEDENT tokens bracket each block, and logical
// lines end in NEWLINE. Blank lines and '#' comments are skipped.
func lex(src string) ([]token, error) {
	var toks []token
	indents := []int{0}
	lines := strings.Split(src, "\n")
	parenDepth := 0

	for lineIdx, raw := range lines {
		lineNo := lineIdx + 1
		line := stripComment(raw)
		trimmed := strings.TrimRight(line, " \t")
		if parenDepth == 0 {
			if strings.TrimSpace(trimmed) == "" {
				continue
			}
			indent := leadingSpaces(trimmed)
			cur := indents[len(indents)-1]
			if indent > cur {
				indents = append(indents, indent)
				toks = append(toks, token{tIndent, "", lineNo, 1})
			}
			for indent < indents[len(indents)-1] {
				indents = indents[:len(indents)-1]
				toks = append(toks, token{tDedent, "", lineNo, 1})
			}
			if indent != indents[len(indents)-1] {
				return nil, fmt.Errorf("inconsistent indentation at line %d", lineNo)
			}
		}
		rest := strings.TrimLeft(trimmed, " \t")
		col := len(trimmed) - len(rest) + 1
		lineToks, newDepth, err := lexLine(rest, lineNo, col, parenDepth)
		if err != nil {
			return nil, err
		}
		parenDepth = newDepth
		toks = append(toks, lineToks...)
		if parenDepth == 0 && strings.TrimSpace(trimmed) != "" {
			toks = append(toks, token{tNewline, "", lineNo, len(raw) + 1})
		}
	}
	for len(indents) > 1 {
		indents = indents[:len(indents)-1]
		toks = append(toks, token{tDedent, "", len(lines) + 1, 1})
	}
	toks = append(toks, token{tEOF, "", len(lines) + 1, 1})
	return toks, nil
}

func stripComment(s string) string {
	inStr := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == inStr {
				inStr = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			inStr = c
			continue
		}
		if c == '#' {
			return s[:i]
		}
	}
	return s
}

func leadingSpaces(s string) int {
	n := 0
	for _, c := range s {
		if c == ' ' {
			n++
		} else if c == '\t' {
			n += 8
		} else {
			break
		}
	}
	return n
}

func lexLine(s string, line, startCol, parenDepth int) ([]token, int, error) {
	var toks []token
	i := 0
	col := startCol
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
			col++
		case c == '(' || c == '[' || c == '{':
			parenDepth++
			toks = append(toks, token{tOp, string(c), line, col})
			i++
			col++
		case c == ')' || c == ']' || c == '}':
			if parenDepth > 0 {
				parenDepth--
			}
			toks = append(toks, token{tOp, string(c), line, col})
			i++
			col++
		case c == '\'' || c == '"':
			j := i + 1
			var b strings.Builder
			for j < len(s) && s[j] != c {
				if s[j] == '\\' && j+1 < len(s) {
					b.WriteByte(unescape(s[j+1]))
					j += 2
					continue
				}
				b.WriteByte(s[j])
				j++
			}
			toks = append(toks, token{tString, b.String(), line, col})
			col += j - i + 1
			i = j + 1
		case isDigit(c):
			j := i
			isFloat := false
			for j < len(s) && (isDigit(s[j]) || s[j] == '.' || s[j] == '_') {
				if s[j] == '.' {
					isFloat = true
				}
				j++
			}
			kind := tInt
			if isFloat {
				kind = tFloat
			}
			toks = append(toks, token{kind, strings.ReplaceAll(s[i:j], "_", ""), line, col})
			col += j - i
			i = j
		case isNameStart(c):
			j := i
			for j < len(s) && isNameCont(s[j]) {
				j++
			}
			text := s[i:j]
			kind := tName
			if keywords[text] {
				kind = tKeyword
			}
			toks = append(toks, token{kind, text, line, col})
			col += j - i
			i = j
		default:
			op, n := lexOp(s[i:])
			if n == 0 {
				return nil, 0, fmt.Errorf("unexpected character %q at line %d col %d", c, line, col)
			}
			toks = append(toks, token{tOp, op, line, col})
			i += n
			col += n
		}
	}
	return toks, parenDepth, nil
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return c
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
func isNameCont(c byte) bool { return isNameStart(c) || isDigit(c) }

var multiCharOps = []string{
	"**=", "//=", "==", "!=", "<=", ">=", "->", ":=",
	"**", "//", "+=", "-=", "*=", "/=", "%=",
}

func lexOp(s string) (string, int) {
	for _, op := range multiCharOps {
		if strings.HasPrefix(s, op) {
			return op, len(op)
		}
	}
	switch s[0] {
	case '+', '-', '*', '/', '%', '(', ')', '[', ']', '{', '}', ',', ':', '.', '=', '<', '>', ';':
		return string(s[0]), 1
	}
	return "", 0
}
