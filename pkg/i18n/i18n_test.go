package i18n_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxkernel/sandboxkernel/pkg/i18n"
	"github.com/sandboxkernel/sandboxkernel/pkg/result"
)

func TestTranslateFallsBackToKeyWhenUnknown(t *testing.T) {
	assert.Equal(t, "no.such.key", i18n.Translate("no.such.key", "en", nil))
}

func TestTranslateMessageExactMatch(t *testing.T) {
	got := i18n.TranslateMessage("import is not allowed", "zh-CN")
	assert.Equal(t, "禁止 import", got)
}

func TestTranslateMessagePatternMatchInterpolates(t *testing.T) {
	got := i18n.TranslateMessage("attribute 'math.cos' is not allowed", "zh-CN")
	assert.Contains(t, got, "math.cos")
}

func TestTranslateMessageUnrecognizedPassesThrough(t *testing.T) {
	got := i18n.TranslateMessage("some made up error", "zh-CN")
	assert.Equal(t, "some made up error", got)
}

func TestTranslateErrorLeavesDefaultLocaleUntouched(t *testing.T) {
	err := &result.ErrorInfo{Stage: "policy", Message: "import is not allowed"}
	out := i18n.TranslateError(err, "")
	require.Same(t, err, out)
}

func TestTranslateErrorTranslatesMessage(t *testing.T) {
	err := &result.ErrorInfo{Stage: "policy", Message: "import is not allowed"}
	out := i18n.TranslateError(err, "zh-CN")
	assert.Equal(t, "禁止 import", out.Message)
	assert.Equal(t, "import is not allowed", err.Message, "original must not be mutated")
}

func TestRegisterBundleAddsNewLocale(t *testing.T) {
	i18n.RegisterBundle("fr", map[string]string{"error.import_not_allowed": "import interdit"})
	got := i18n.TranslateMessage("import is not allowed", "fr")
	assert.Equal(t, "import interdit", got)
}

func TestDefaultTranslatorDelegatesToTranslate(t *testing.T) {
	got := i18n.Default.Translate("error.token_budget_scopes", "en", nil)
	assert.Equal(t, "token budget exceeded across scopes", got)
}
