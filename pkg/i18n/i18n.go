// Package i18n translates the sandbox's internal error messages into a
// caller-chosen locale. Translation is best-effort and never fails the run:
// an unknown locale falls back to the English bundle, an unknown key to the
// key itself, and an unrecognised message shape to the original message.
package i18n

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/sandboxkernel/sandboxkernel/pkg/result"
)

// DefaultLocale is used whenever a caller passes an empty locale.
const DefaultLocale = "en"

// Translator resolves a message key plus parameters into locale text.
type Translator interface {
	Translate(key, locale string, params map[string]any) string
}

var bundles = map[string]map[string]string{
	"en": {
		"error.import_not_allowed":       "import is not allowed",
		"error.global_not_allowed":       "global is not allowed",
		"error.nonlocal_not_allowed":     "nonlocal is not allowed",
		"error.del_not_allowed":          "del is not allowed",
		"error.raise_not_allowed":        "raise is not allowed",
		"error.yield_not_allowed":        "yield is not allowed",
		"error.class_not_allowed":        "class is not allowed",
		"error.def_not_allowed":          "def is not allowed",
		"error.lambda_not_allowed":       "lambda is not allowed",
		"error.try_not_allowed":          "try/except is not allowed",
		"error.with_not_allowed":         "with is not allowed",
		"error.subscript_not_allowed":    "subscript is not allowed",
		"error.dunder_name_not_allowed":  "dunder names are not allowed",
		"error.attr_root_only":           "only root.attr attribute access is allowed",
		"error.attr_not_allowed":         "attribute '{root}.{attr}' is not allowed",
		"error.loop_nesting_too_deep":    "loop nesting too deep",
		"error.comp_nesting_too_deep":    "comprehension nesting too deep",
		"error.suspicious_const_alloc":   "suspicious constant allocation",
		"error.ast_node_limit":           "AST node limit exceeded",
		"error.step_limit":               "step limit exceeded: {max_steps}",
		"error.timeout":                  "exceeded {ms}ms",
		"error.cap_max_call_ms":          "cap max_call_ms exceeded ({ms}ms)",
		"error.cap_max_ret_bytes":        "cap max_ret_bytes exceeded ({bytes} bytes)",
		"error.cap_max_calls":            "cap max_calls exceeded ({calls})",
		"error.token_budget_scopes":      "token budget exceeded across scopes",
		"error.worker_no_payload":        "no payload from worker",
	},
	"zh-CN": {
		"error.import_not_allowed":      "禁止 import",
		"error.global_not_allowed":      "禁止 global",
		"error.nonlocal_not_allowed":    "禁止 nonlocal",
		"error.del_not_allowed":         "禁止 del",
		"error.raise_not_allowed":       "禁止 raise",
		"error.yield_not_allowed":       "禁止 yield",
		"error.class_not_allowed":       "禁止 class",
		"error.def_not_allowed":         "禁止 def",
		"error.lambda_not_allowed":      "禁止 lambda",
		"error.try_not_allowed":         "禁止 try/except",
		"error.with_not_allowed":        "禁止 with",
		"error.subscript_not_allowed":   "禁止下标访问",
		"error.dunder_name_not_allowed": "禁止双下划线名称",
		"error.attr_root_only":          "仅允许 root.attr 形式的属性访问",
		"error.attr_not_allowed":        "属性 '{root}.{attr}' 不被允许",
		"error.loop_nesting_too_deep":   "循环嵌套过深",
		"error.comp_nesting_too_deep":   "推导式嵌套过深",
		"error.suspicious_const_alloc":  "可疑的大常量分配",
		"error.ast_node_limit":          "AST 节点数量超限",
		"error.step_limit":              "执行步数超限：{max_steps}",
		"error.timeout":                 "超时（超过 {ms}ms）",
		"error.cap_max_call_ms":         "能力单次耗时超限（{ms}ms）",
		"error.cap_max_ret_bytes":       "能力返回大小超限（{bytes} 字节）",
		"error.cap_max_calls":           "能力调用次数超限（{calls}）",
		"error.token_budget_scopes":     "跨 scope 的 token 预算超限",
		"error.worker_no_payload":       "worker 未返回 payload",
	},
}

var exactMessageKeys = map[string]string{
	"import is not allowed":                       "error.import_not_allowed",
	"global is not allowed":                       "error.global_not_allowed",
	"nonlocal is not allowed":                      "error.nonlocal_not_allowed",
	"del is not allowed":                           "error.del_not_allowed",
	"raise is not allowed":                         "error.raise_not_allowed",
	"yield is not allowed":                         "error.yield_not_allowed",
	"class is not allowed":                         "error.class_not_allowed",
	"def is not allowed":                           "error.def_not_allowed",
	"lambda is not allowed":                        "error.lambda_not_allowed",
	"try/except is not allowed":                    "error.try_not_allowed",
	"with is not allowed":                          "error.with_not_allowed",
	"subscript is not allowed":                      "error.subscript_not_allowed",
	"dunder names are not allowed":                  "error.dunder_name_not_allowed",
	"only root.attr attribute access is allowed":    "error.attr_root_only",
	"loop nesting too deep":                         "error.loop_nesting_too_deep",
	"comprehension nesting too deep":                "error.comp_nesting_too_deep",
	"suspicious constant allocation":                "error.suspicious_const_alloc",
	"AST node limit exceeded":                       "error.ast_node_limit",
	"token budget exceeded across scopes":           "error.token_budget_scopes",
	"no payload from worker":                        "error.worker_no_payload",
}

type patternKey struct {
	re  *regexp.Regexp
	key string
}

var patternKeys = []patternKey{
	{regexp.MustCompile(`^attribute '(.+)\.(.+)' is not allowed$`), "error.attr_not_allowed"},
	{regexp.MustCompile(`^step limit exceeded \((\d+) > \d+\)$`), "error.step_limit"},
	{regexp.MustCompile(`^cap max_call_ms exceeded$`), "error.cap_max_call_ms"},
	{regexp.MustCompile(`^cap max_ret_bytes exceeded$`), "error.cap_max_ret_bytes"},
	{regexp.MustCompile(`^cap max_calls exceeded$`), "error.cap_max_calls"},
	{regexp.MustCompile(`^exceeded (\d+)ms$`), "error.timeout"},
}

// RegisterBundle adds or overlays per-key messages for locale, used to
// extend coverage beyond the built-in "en"/"zh-CN" bundles.
func RegisterBundle(locale string, messages map[string]string) {
	if locale == "" {
		return
	}
	bundle, ok := bundles[locale]
	if !ok {
		cp := make(map[string]string, len(messages))
		for k, v := range messages {
			cp[k] = v
		}
		bundles[locale] = cp
		return
	}
	for k, v := range messages {
		bundle[k] = v
	}
}

// passthrough is the default Translator: it applies the built-in bundles
// and falls back to the original text for anything unrecognized.
type passthrough struct{}

// Default is the zero-configuration Translator the façade uses when the
// caller supplies none.
var Default Translator = passthrough{}

func (passthrough) Translate(key, locale string, params map[string]any) string {
	return Translate(key, locale, params)
}

// Translate resolves key against locale's bundle, falling back to
// DefaultLocale's bundle, then to key itself, then interpolates params.
func Translate(key, locale string, params map[string]any) string {
	if locale == "" {
		locale = DefaultLocale
	}
	text, ok := bundles[locale][key]
	if !ok {
		text, ok = bundles[DefaultLocale][key]
	}
	if !ok {
		text = key
	}
	return interpolate(text, params)
}

func interpolate(text string, params map[string]any) string {
	if len(params) == 0 {
		return text
	}
	for k, v := range params {
		text = replaceAll(text, "{"+k+"}", fmt.Sprint(v))
	}
	return text
}

func replaceAll(s, old, new string) string {
	for {
		i := indexOf(s, old)
		if i < 0 {
			return s
		}
		s = s[:i] + new + s[i+len(old):]
	}
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// TranslateMessage converts one raw SandboxError-style message to locale
// text, matching it against the exact-message table first, then the
// regex/parameterized table, leaving it untouched if nothing matches.
func TranslateMessage(message, locale string) string {
	if message == "" {
		return message
	}
	if key, ok := exactMessageKeys[message]; ok {
		return Translate(key, locale, nil)
	}
	for _, pk := range patternKeys {
		m := pk.re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		return Translate(pk.key, locale, matchToParams(pk.key, m[1:]))
	}
	return message
}

func matchToParams(key string, groups []string) map[string]any {
	switch key {
	case "error.attr_not_allowed":
		return map[string]any{"root": groups[0], "attr": groups[1]}
	case "error.step_limit":
		n, _ := strconv.Atoi(groups[0])
		return map[string]any{"max_steps": n}
	case "error.timeout":
		n, _ := strconv.Atoi(groups[0])
		return map[string]any{"ms": n}
	}
	return nil
}

// TranslateError returns a copy of err with its Message translated, or err
// itself unchanged when locale is empty/DefaultLocale or nothing matched.
func TranslateError(err *result.ErrorInfo, locale string) *result.ErrorInfo {
	if err == nil {
		return nil
	}
	if locale == "" || locale == DefaultLocale {
		return err
	}
	msg := TranslateMessage(err.Message, locale)
	if msg == err.Message {
		return err
	}
	cp := *err
	cp.Message = msg
	return &cp
}
