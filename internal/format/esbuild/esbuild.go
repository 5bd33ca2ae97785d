// Package esbuild re-prints JavaScript with esbuild's printer. The code is
// parsed and printed, never executed.
//
// esbuild's printer keeps legal comments (/*! ... */, @license, @preserve)
// and drops every other comment. String and template literal contents are
// preserved byte for byte, including after Reindent.
package esbuild

import (
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

const printerIndent = 2

// Transform pretty-prints input. esbuild always indents with two spaces, so
// other indent settings are applied by rewriting leading whitespace.
func Transform(input string, opts harvest.FormatOptions) (string, error) {
	result := api.Transform(input, api.TransformOptions{
		Loader:        api.LoaderJS,
		Charset:       api.CharsetUTF8,
		LegalComments: api.LegalCommentsInline,
		LogLevel:      api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, m := range result.Errors {
			msgs = append(msgs, m.Text)
		}
		return "", &harvest.TransformError{Message: strings.Join(msgs, "; ")}
	}
	out := string(result.Code)
	if opts.UseTabs || (opts.IndentSize > 0 && opts.IndentSize != printerIndent) {
		out = Reindent(out, opts.Indent())
	}
	return out, nil
}

// Reindent replaces each two-space step of leading indentation with unit.
// Lines that begin inside a template literal or string are left alone.
func Reindent(code, unit string) string {
	lines := strings.Split(code, "\n")
	inLiteral := literalLines(code)
	for i, line := range lines {
		if inLiteral[i] {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, " "))
		if n == 0 {
			continue
		}
		levels, rest := n/printerIndent, n%printerIndent
		lines[i] = strings.Repeat(unit, levels) + strings.Repeat(" ", rest) + line[n:]
	}
	return strings.Join(lines, "\n")
}

// frame is one lexical level: plain code, or the text part of a template
// literal. depth counts open braces so the "}" closing a ${...} substitution
// is told apart from a block end.
type frame struct {
	template bool
	depth    int
}

// literalLines reports for every line of code whether it starts inside a
// literal. The result has one entry per "\n" plus one.
func literalLines(code string) []bool {
	lines := []bool{false}
	stack := []frame{{}}
	var lastSig byte
	lastWord := ""

	for i := 0; i < len(code); i++ {
		c := code[i]
		if c == '\n' {
			lines = append(lines, stack[len(stack)-1].template)
			continue
		}
		if stack[len(stack)-1].template {
			switch {
			case c == '\\':
				i++
				if i < len(code) && code[i] == '\n' {
					lines = append(lines, true)
				}
			case c == '`':
				stack = stack[:len(stack)-1]
				lastSig, lastWord = ')', ""
			case c == '$' && i+1 < len(code) && code[i+1] == '{':
				i++
				stack = append(stack, frame{})
				lastSig, lastWord = '{', ""
			}
			continue
		}

		next := byte(0)
		if i+1 < len(code) {
			next = code[i+1]
		}
		switch {
		case c == ' ' || c == '\t' || c == '\r':
		case c == '\'' || c == '"':
			i = skipQuoted(code, i, &lines)
			lastSig, lastWord = ')', ""
		case c == '`':
			stack = append(stack, frame{template: true})
		case c == '/' && next == '/':
			if end := strings.IndexByte(code[i:], '\n'); end >= 0 {
				i += end - 1
			} else {
				i = len(code)
			}
		case c == '/' && next == '*':
			end := strings.Index(code[i+2:], "*/")
			if end < 0 {
				end = len(code) - i - 2
			}
			for range strings.Count(code[i:i+2+end], "\n") {
				lines = append(lines, false)
			}
			i += end + 3
		case c == '/' && regexAllowed(lastSig, lastWord):
			i = skipRegex(code, i)
			lastSig, lastWord = ')', ""
		case c == '{':
			stack[len(stack)-1].depth++
			lastSig, lastWord = c, ""
		case c == '}':
			top := &stack[len(stack)-1]
			if top.depth == 0 && len(stack) > 1 {
				stack = stack[:len(stack)-1]
				continue
			}
			top.depth--
			lastSig, lastWord = c, ""
		case isIdent(c):
			j := i
			for j < len(code) && isIdent(code[j]) {
				j++
			}
			lastSig, lastWord = 'a', code[i:j]
			i = j - 1
		default:
			lastSig, lastWord = c, ""
		}
	}
	return lines
}

// skipQuoted returns the index of the quote closing the string opened at i.
// Escaped newlines inside the string are recorded as literal line starts.
func skipQuoted(code string, i int, lines *[]bool) int {
	q := code[i]
	for j := i + 1; j < len(code); j++ {
		switch code[j] {
		case '\\':
			j++
			if j < len(code) && code[j] == '\n' {
				*lines = append(*lines, true)
			}
		case q:
			return j
		case '\n':
			return j - 1
		}
	}
	return len(code) - 1
}

// skipRegex returns the index of the last flag of the regex literal opened
// at i.
func skipRegex(code string, i int) int {
	inClass := false
	for j := i + 1; j < len(code); j++ {
		switch code[j] {
		case '\\':
			j++
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '\n':
			return j - 1
		case '/':
			if inClass {
				continue
			}
			for j+1 < len(code) && isIdent(code[j+1]) {
				j++
			}
			return j
		}
	}
	return len(code) - 1
}

var regexKeywords = map[string]bool{
	"return": true, "typeof": true, "instanceof": true, "in": true, "of": true,
	"new": true, "delete": true, "void": true, "throw": true, "case": true,
	"do": true, "else": true, "yield": true, "await": true,
}

// regexAllowed reports whether a "/" after the previous token starts a
// regex literal rather than a division.
func regexAllowed(lastSig byte, lastWord string) bool {
	if lastWord != "" {
		return regexKeywords[lastWord]
	}
	if lastSig == 0 {
		return true
	}
	return strings.IndexByte("(,=:[!&|?{};+-*%<>~^", lastSig) >= 0
}

func isIdent(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
