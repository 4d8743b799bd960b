// Package sqlguard checks generated SQL before it reaches the store.
//
// The guard is a syntactic allow-list, not a SQL parser. String literals and
// quoted identifiers are filled with placeholder bytes and comments are
// blanked out, then the remaining text is scanned for statement separators
// and denylisted keywords. SELECT ... INTO is refused through the INTO keyword.
//
// Known limitations: a read-only statement that mentions a denylisted word as
// a bare identifier (for example a column named "update") is rejected,
// mutating phrases such as "drop table" are refused even inside string
// literals, and side effects hidden inside engine functions are not detected.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
)

// UnsafeQueryError reports why a statement was refused.
type UnsafeQueryError struct {
	Reason string
}

func (e *UnsafeQueryError) Error() string {
	return "unsafe query: " + e.Reason
}

var deniedKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "create",
	"truncate", "grant", "attach", "pragma", "exec", "into",
}

var deniedKeywordPattern = regexp.MustCompile(`\b(` + strings.Join(deniedKeywords, "|") + `)\b`)

// Mutating phrases are refused even inside literals and comments.
var deniedPhrasePattern = regexp.MustCompile(`(?i)\b(drop\s+table|delete\s+from|insert\s+into|update\s)`)

// Check returns the statement without a trailing separator when it is a
// single read-only SELECT, or an *UnsafeQueryError otherwise.
func Check(sqlText string) (string, error) {
	if match := deniedPhrasePattern.FindString(sqlText); match != "" {
		phrase := strings.ToUpper(strings.Join(strings.Fields(match), " "))
		return "", &UnsafeQueryError{Reason: fmt.Sprintf("%q is not allowed", phrase)}
	}
	masked, err := mask(sqlText)
	if err != nil {
		return "", err
	}

	end := len(masked)
	for {
		end = len(strings.TrimRight(masked[:end], " \t\r\n"))
		if end == 0 || masked[end-1] != ';' {
			break
		}
		end--
	}
	body := strings.ToLower(strings.TrimSpace(masked[:end]))
	if body == "" {
		return "", &UnsafeQueryError{Reason: "statement is empty"}
	}
	if strings.Contains(body, ";") {
		return "", &UnsafeQueryError{Reason: "multiple statements are not allowed"}
	}
	if match := deniedKeywordPattern.FindString(body); match != "" {
		return "", &UnsafeQueryError{Reason: fmt.Sprintf("keyword %q is not allowed", strings.ToUpper(match))}
	}
	if !startsWithWord(body, "select") {
		return "", &UnsafeQueryError{Reason: "only SELECT statements are allowed"}
	}
	return strings.TrimSpace(sqlText[:end]), nil
}

// IsSafe reports whether Check accepts the statement.
func IsSafe(sqlText string) bool {
	_, err := Check(sqlText)
	return err == nil
}

func startsWithWord(text, word string) bool {
	if !strings.HasPrefix(text, word) {
		return false
	}
	if len(text) == len(word) {
		return true
	}
	next := text[len(word)]
	return !(next == '_' || next >= 'a' && next <= 'z' || next >= '0' && next <= '9')
}

// literalFill stands in for quoted text. It is neither a word byte nor
// whitespace, so a trailing literal is never trimmed and never matches a
// keyword.
const literalFill = '#'

// mask replaces string literals and quoted identifiers with literalFill and
// comments with spaces, keeping byte offsets aligned with the input.
func mask(sqlText string) (string, error) {
	out := []byte(sqlText)
	fill := func(from, to int, with byte) {
		for i := from; i < to; i++ {
			if out[i] != '\n' {
				out[i] = with
			}
		}
	}

	for i := 0; i < len(sqlText); {
		switch {
		case sqlText[i] == '\'' || sqlText[i] == '"' || sqlText[i] == '`':
			quote := sqlText[i]
			end := i + 1
			for {
				next := strings.IndexByte(sqlText[end:], quote)
				if next < 0 {
					return "", &UnsafeQueryError{Reason: "unterminated quoted literal"}
				}
				end += next + 1
				if end < len(sqlText) && sqlText[end] == quote {
					end++
					continue
				}
				break
			}
			fill(i, end, literalFill)
			i = end
		case strings.HasPrefix(sqlText[i:], "--"):
			end := strings.IndexByte(sqlText[i:], '\n')
			if end < 0 {
				end = len(sqlText)
			} else {
				end += i
			}
			fill(i, end, ' ')
			i = end
		case strings.HasPrefix(sqlText[i:], "/*"):
			end := strings.Index(sqlText[i+2:], "*/")
			if end < 0 {
				return "", &UnsafeQueryError{Reason: "unterminated block comment"}
			}
			end += i + 4
			fill(i, end, ' ')
			i = end
		default:
			i++
		}
	}
	return string(out), nil
}
