package agent

import (
	"regexp"
	"strings"
	"unicode"
)

// QueryType decides how much memory a decision prompt carries.
type QueryType int

const (
	QueryComplex QueryType = iota
	QueryShortFactoid
	QueryArithmetic
)

var (
	arithmeticRegex = regexp.MustCompile(`^\s*\d+(\.\d+)?(\s*[\+\-\*\/]\s*\d+(\.\d+)?)+\s*$`)
	shortFactRegex  = regexp.MustCompile(`^[\p{L}\p{N}\s\?\!\.\,\-]{1,32}$`)
)

func classifyQuery(input string) QueryType {
	in := strings.TrimSpace(input)
	switch {
	case in == "":
		return QueryComplex
	case arithmeticRegex.MatchString(in):
		return QueryArithmetic
	case len([]rune(in)) <= 32 && shortFactRegex.MatchString(in):
		return QueryShortFactoid
	case len(strings.FieldsFunc(in, unicode.IsSpace)) == 1:
		return QueryShortFactoid
	}
	return QueryComplex
}

// memoryBudget scales the prompt budget to the query: arithmetic needs no history and
// short lookups get half.
func memoryBudget(q QueryType, budget int) int {
	switch q {
	case QueryArithmetic:
		return 0
	case QueryShortFactoid:
		return budget / 2
	}
	return budget
}
