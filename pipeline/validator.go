package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// forbiddenPattern matches SPARQL update operations and constructs that
// would break the pipeline's read-only contract. These are rejected
// regardless of configuration.
var forbiddenPattern = regexp.MustCompile(`(?i)\b(INSERT|DELETE|DROP|CLEAR|CREATE|LOAD|COPY|MOVE|ADD|SERVICE|WITH|USING|VALUES\s*\{\s*<http)\b`)

// updateKeywordPattern recognizes text that leads with an update operation,
// so it can be reported as a disallowed form rather than a syntax failure.
var updateKeywordPattern = regexp.MustCompile(`(?is)^\s*(?:(?:PREFIX\s+\S+\s+<[^>]*>|BASE\s+<[^>]*>)\s*)*(INSERT|DELETE|DROP|CLEAR|CREATE|LOAD|COPY|MOVE|ADD|WITH)\b`)

// limitPattern finds an existing LIMIT clause.
var limitPattern = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)\b`)

// Validator statically checks candidates before execution.
type Validator struct {
	// MaxRows caps SELECT results; injected as LIMIT when absent.
	MaxRows int
	// MaxTriples caps CONSTRUCT/DESCRIBE results.
	MaxTriples int
	// MaxQueryChars rejects over-length candidates.
	MaxQueryChars int
	// AllowDescribe permits the DESCRIBE form.
	AllowDescribe bool
}

// Validate advances a candidate to validated or rejected. Checks run in
// order: syntax, form, bounds. Rejection is terminal for the candidate and
// returns the recorded *RejectionReason.
func (v *Validator) Validate(c *CandidateQuery) error {
	if reason := v.check(c); reason != nil {
		c.Status = StatusRejected
		c.Rejection = reason
		return reason
	}
	c.Status = StatusValidated
	return nil
}

func (v *Validator) check(c *CandidateQuery) *RejectionReason {
	// (a) syntax
	if strings.TrimSpace(c.Text) == "" {
		return &RejectionReason{Kind: RejectionSyntax, Detail: "empty query"}
	}
	if c.Form == FormUnknown {
		if m := updateKeywordPattern.FindStringSubmatch(c.Text); m != nil {
			return &RejectionReason{
				Kind:   RejectionForm,
				Detail: fmt.Sprintf("update operation %s is not allowed; the pipeline is read-only", strings.ToUpper(m[1])),
			}
		}
		return &RejectionReason{Kind: RejectionSyntax, Detail: "query does not start with a recognized SPARQL form"}
	}
	if err := checkDelimiters(c.Text); err != nil {
		return &RejectionReason{Kind: RejectionSyntax, Detail: err.Error()}
	}

	// (b) form
	if c.Form == FormDescribe && !v.AllowDescribe {
		return &RejectionReason{Kind: RejectionForm, Detail: "DESCRIBE is not enabled"}
	}
	if m := forbiddenPattern.FindString(c.Text); m != "" {
		return &RejectionReason{
			Kind:   RejectionForm,
			Detail: fmt.Sprintf("query contains forbidden operation %s", strings.ToUpper(m)),
		}
	}

	// (c) bounds
	if v.MaxQueryChars > 0 && len(c.Text) > v.MaxQueryChars {
		return &RejectionReason{
			Kind:   RejectionBound,
			Detail: fmt.Sprintf("query length %d exceeds limit %d", len(c.Text), v.MaxQueryChars),
		}
	}
	v.enforceLimit(c)

	return nil
}

// enforceLimit injects a LIMIT clause when absent and clamps an existing
// one to the configured cap. ASK queries return no rows and need no LIMIT.
func (v *Validator) enforceLimit(c *CandidateQuery) {
	if c.Form == FormAsk {
		return
	}

	limit := v.MaxRows
	if c.Form == FormConstruct || c.Form == FormDescribe {
		limit = v.MaxTriples
	}
	if limit <= 0 {
		return
	}

	// Only the outer query's LIMIT (at brace depth zero) is subject to the
	// cap; subquery LIMITs stay as written and the executor's row cap
	// bounds whatever the store returns.
	if start, end, existing, ok := outerLimit(c.Text); ok {
		if existing <= limit {
			return
		}
		c.Text = c.Text[:start] + fmt.Sprintf("LIMIT %d", limit) + c.Text[end:]
		return
	}

	c.Text = strings.TrimRight(c.Text, " \t\n") + fmt.Sprintf("\nLIMIT %d", limit)
}

// outerLimit locates a LIMIT clause that sits outside all braces.
func outerLimit(query string) (start, end, value int, ok bool) {
	for _, m := range limitPattern.FindAllStringSubmatchIndex(query, -1) {
		if braceDepthAt(query, m[0]) != 0 {
			continue
		}
		n, err := strconv.Atoi(query[m[2]:m[3]])
		if err != nil {
			continue
		}
		return m[0], m[1], n, true
	}
	return 0, 0, 0, false
}

// braceDepthAt counts unclosed braces before offset, skipping string
// literals the same way checkDelimiters does.
func braceDepthAt(query string, offset int) int {
	depth := 0
	inString := false
	var quote byte

	for i := 0; i < offset && i < len(query); i++ {
		ch := query[i]

		if inString {
			if ch == '\\' {
				i++
				continue
			}
			if ch == quote {
				inString = false
			}
			continue
		}

		switch ch {
		case '"', '\'':
			inString = true
			quote = ch
		case '{':
			depth++
		case '}':
			depth--
		}
	}
	return depth
}

// checkDelimiters verifies braces, parentheses and quotes pair up. It is a
// cheap parseability gate, not a full SPARQL grammar check; the store is
// the final arbiter and engine rejections surface as store errors.
func checkDelimiters(query string) error {
	var depth, parens int
	var inString bool
	var quote byte

	for i := 0; i < len(query); i++ {
		ch := query[i]

		if inString {
			if ch == '\\' {
				i++
				continue
			}
			if ch == quote {
				inString = false
			}
			continue
		}

		switch ch {
		case '"', '\'':
			inString = true
			quote = ch
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced braces")
			}
		case '(':
			parens++
		case ')':
			parens--
			if parens < 0 {
				return fmt.Errorf("unbalanced parentheses")
			}
		}
	}

	if inString {
		return fmt.Errorf("unterminated string literal")
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced braces")
	}
	if parens != 0 {
		return fmt.Errorf("unbalanced parentheses")
	}
	return nil
}
