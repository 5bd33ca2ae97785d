package esbuild

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

// TestTransformPrettyPrints expands minified code with default indentation.
func TestTransformPrettyPrints(t *testing.T) {
	t.Parallel()

	out, err := Transform("function f(a){if(a){return 1}return 2}", harvest.FormatOptions{Enabled: true, IndentSize: 2})
	require.NoError(t, err)
	require.Equal(t, "function f(a) {\n  if (a) {\n    return 1;\n  }\n  return 2;\n}\n", out)
}

// TestTransformTabs rewrites indentation with tabs.
func TestTransformTabs(t *testing.T) {
	t.Parallel()

	out, err := Transform("function f(a){if(a){return 1}}", harvest.FormatOptions{Enabled: true, UseTabs: true})
	require.NoError(t, err)
	require.Equal(t, "function f(a) {\n\tif (a) {\n\t\treturn 1;\n\t}\n}\n", out)
}

// TestTransformSyntaxError reports a TransformError.
func TestTransformSyntaxError(t *testing.T) {
	t.Parallel()

	_, err := Transform("function (", harvest.FormatOptions{Enabled: true})
	var te *harvest.TransformError
	require.True(t, errors.As(err, &te))
	require.NotEmpty(t, te.Message)
}

// TestReindent converts two-space steps and keeps odd remainders.
func TestReindent(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a\n    b\n        c\n     d", Reindent("a\n  b\n    c\n   d", "    "))
}

// TestTransformKeepsTemplateLiteralValues leaves literal text alone when the
// indent unit changes.
func TestTransformKeepsTemplateLiteralValues(t *testing.T) {
	t.Parallel()

	src := "function f(){\n  const s = `line1\n    indented`;\n  return s;\n}\n"

	tabs, err := Transform(src, harvest.FormatOptions{Enabled: true, UseTabs: true})
	require.NoError(t, err)
	require.Equal(t, "function f() {\n\tconst s = `line1\n    indented`;\n\treturn s;\n}\n", tabs)

	four, err := Transform(src, harvest.FormatOptions{Enabled: true, IndentSize: 4})
	require.NoError(t, err)
	require.Equal(t, "function f() {\n    const s = `line1\n    indented`;\n    return s;\n}\n", four)
}

// TestTransformCommentHandling keeps legal comments and drops the rest.
func TestTransformCommentHandling(t *testing.T) {
	t.Parallel()

	out, err := Transform("/*! license text */\n// keep me\nfunction g(){ /* block */ return 1 }\n", harvest.FormatOptions{Enabled: true})
	require.NoError(t, err)
	require.Contains(t, out, "/*! license text */")
	require.NotContains(t, out, "keep me")
	require.NotContains(t, out, "block")
	require.Contains(t, out, "return 1;")
}

// TestReindentSkipsLiterals tracks substitutions, strings, and regexes that
// contain backticks.
func TestReindentSkipsLiterals(t *testing.T) {
	t.Parallel()

	in := "const a = `x\n  y ${f({\n  k: 1\n})}\n  z`;\nif (a) {\n  b(/`/g, \"`\");\n  c = d / 2 / e;\n}"
	want := "const a = `x\n  y ${f({\n\tk: 1\n})}\n  z`;\nif (a) {\n\tb(/`/g, \"`\");\n\tc = d / 2 / e;\n}"
	require.Equal(t, want, Reindent(in, "\t"))
}

// TestReindentBlockComments keeps line accounting across multi-line comments.
func TestReindentBlockComments(t *testing.T) {
	t.Parallel()

	in := "/*!\n  * banner `\n  */\nfunction h() {\n  return `a\n  b`;\n}"
	want := "/*!\n\t* banner `\n\t*/\nfunction h() {\n\treturn `a\n  b`;\n}"
	require.Equal(t, want, Reindent(in, "\t"))
}
