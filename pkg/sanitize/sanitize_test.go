package sanitize

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/treegate/pkg/fault"
)

func TestSanitizeComponentName(t *testing.T) {
	s := New(Options{})

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "plain identifier", input: "MyComponent", want: "MyComponent"},
		{name: "qualified identifier", input: "ui.Button", want: "ui.Button"},
		{name: "empty", input: "", wantErr: fault.ErrInvalidInput},
		{name: "script tag", input: "<script>alert(1)</script>", wantErr: fault.ErrDangerousContent},
		{name: "template marker", input: "${component}", wantErr: fault.ErrDangerousContent},
		{name: "proto access", input: "__proto__", wantErr: fault.ErrDangerousContent},
		{name: "leading digit", input: "1Component", wantErr: fault.ErrInvalidInput},
		{name: "spaces", input: "My Component", wantErr: fault.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.SanitizeComponentName(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeAttributeName(t *testing.T) {
	s := New(Options{})

	got, err := s.SanitizeAttributeName("onClick")
	require.NoError(t, err)
	assert.Equal(t, "onClick", got)

	_, err = s.SanitizeAttributeName("on-click")
	assert.ErrorIs(t, err, fault.ErrInvalidInput)

	_, err = s.SanitizeAttributeName("constructor.call")
	assert.ErrorIs(t, err, fault.ErrDangerousContent)
}

func TestSanitizeSearchValue(t *testing.T) {
	s := New(Options{})

	got, err := s.SanitizeSearchValue("handleSubmit")
	require.NoError(t, err)
	assert.Equal(t, "handleSubmit", got)

	_, err = s.SanitizeSearchValue("eval(payload)")
	assert.ErrorIs(t, err, fault.ErrDangerousContent)

	_, err = s.SanitizeSearchValue("javascript:alert(1)")
	assert.ErrorIs(t, err, fault.ErrDangerousContent)

	_, err = s.SanitizeSearchValue("../../etc/passwd")
	assert.ErrorIs(t, err, fault.ErrDangerousContent)
}

func TestSanitizePath(t *testing.T) {
	s := New(Options{})

	// Parent segments are legal path syntax; containment is classified by
	// the path layer, not here.
	got, err := s.SanitizePath("../shared/src")
	require.NoError(t, err)
	assert.Equal(t, "../shared/src", got)

	_, err = s.SanitizePath("")
	assert.ErrorIs(t, err, fault.ErrInvalidInput)

	_, err = s.SanitizePath("src\x00dir")
	assert.ErrorIs(t, err, fault.ErrInvalidInput)

	_, err = s.SanitizePath("${HOME}/src")
	assert.ErrorIs(t, err, fault.ErrDangerousContent)
}

func TestSanitizeStringLength(t *testing.T) {
	s := New(Options{MaxStringLength: 16})

	_, err := s.SanitizeString(strings.Repeat("a", 17))
	assert.ErrorIs(t, err, fault.ErrInvalidInput)

	got, err := s.SanitizeString(strings.Repeat("a", 16))
	require.NoError(t, err)
	assert.Len(t, got, 16)
}

func TestSanitizeRegexPattern(t *testing.T) {
	s := New(Options{})

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "anchored class", input: "^[a-zA-Z]+$"},
		{name: "literal word", input: "handleClick"},
		{name: "nested quantifier", input: "(a+)+b", wantErr: fault.ErrDangerousContent},
		{name: "unbounded group repetition", input: "(ab){3,}", wantErr: fault.ErrDangerousContent},
		{name: "repeated wildcards", input: ".*foo.*bar", wantErr: fault.ErrDangerousContent},
		{name: "does not compile", input: "([a-z", wantErr: fault.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.SanitizeRegexPattern(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, got)

			// Idempotent on repeated application.
			again, err := s.SanitizeRegexPattern(got)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestSanitizeGlobPattern(t *testing.T) {
	s := New(Options{})

	got, err := s.SanitizeGlobPattern("src/**/*.go")
	require.NoError(t, err)
	assert.Equal(t, "src/**/*.go", got)

	_, err = s.SanitizeGlobPattern("src/$(rm -rf)")
	assert.Error(t, err)
}

func TestSanitizeCompositeValue(t *testing.T) {
	s := New(Options{MaxArrayLength: 3})

	t.Run("primitives pass through", func(t *testing.T) {
		for _, v := range []any{nil, true, 42, int64(7), 3.14} {
			got, err := s.SanitizeCompositeValue(v)
			require.NoError(t, err)
			assert.Equal(t, v, got)
		}
	})

	t.Run("non-finite numbers rejected", func(t *testing.T) {
		_, err := s.SanitizeCompositeValue(math.Inf(1))
		assert.ErrorIs(t, err, fault.ErrInvalidInput)

		_, err = s.SanitizeCompositeValue(math.NaN())
		assert.ErrorIs(t, err, fault.ErrInvalidInput)
	})

	t.Run("strings route through the generic validator", func(t *testing.T) {
		_, err := s.SanitizeCompositeValue("eval(x)")
		assert.ErrorIs(t, err, fault.ErrDangerousContent)
	})

	t.Run("array over limit rejected", func(t *testing.T) {
		_, err := s.SanitizeCompositeValue([]any{1, 2, 3, 4})
		assert.ErrorIs(t, err, fault.ErrInvalidInput)
	})

	t.Run("nested map sanitized recursively", func(t *testing.T) {
		got, err := s.SanitizeCompositeValue(map[string]any{
			"mode": "strict",
			"tags": []any{"a", "b"},
		})
		require.NoError(t, err)
		m := got.(map[string]any)
		assert.Equal(t, "strict", m["mode"])
	})

	t.Run("unsupported shape rejected", func(t *testing.T) {
		_, err := s.SanitizeCompositeValue(func() {})
		assert.ErrorIs(t, err, fault.ErrInvalidInput)
	})
}

func TestSanitizeAnalyzeParams(t *testing.T) {
	s := New(Options{})

	t.Run("valid bag", func(t *testing.T) {
		params, err := s.SanitizeAnalyzeParams(map[string]any{
			KeyRootPath:        "./test",
			KeyComponent:       "Button",
			KeyAttribute:       "onClick",
			KeyExpectedValue:   "handleClick",
			KeyExactMatch:      true,
			KeyIncludeChildren: false,
		})
		require.NoError(t, err)
		assert.Equal(t, "./test", params.RootPath)
		assert.Equal(t, "Button", params.Component)
		assert.Equal(t, "onClick", params.Attribute)
		assert.True(t, params.HasExpected)
		assert.True(t, params.ExactMatch)
	})

	t.Run("missing required field", func(t *testing.T) {
		_, err := s.SanitizeAnalyzeParams(map[string]any{
			KeyRootPath: "./test",
		})
		require.ErrorIs(t, err, fault.ErrMissingRequired)
		assert.ErrorIs(t, err, fault.ErrInvalidInput)
	})

	t.Run("wrong type for flag", func(t *testing.T) {
		_, err := s.SanitizeAnalyzeParams(map[string]any{
			KeyRootPath:   "./test",
			KeyComponent:  "Button",
			KeyAttribute:  "onClick",
			KeyExactMatch: "yes",
		})
		assert.ErrorIs(t, err, fault.ErrInvalidInput)
	})

	t.Run("dangerous component rejected", func(t *testing.T) {
		_, err := s.SanitizeAnalyzeParams(map[string]any{
			KeyRootPath:  "./test",
			KeyComponent: "<script>alert(1)</script>",
			KeyAttribute: "onClick",
		})
		assert.ErrorIs(t, err, fault.ErrDangerousContent)
	})
}
