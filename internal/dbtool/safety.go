package dbtool

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// UnsafeMessage is the answer given when a statement fails CheckSafe.
const UnsafeMessage = "This type of query is not supported for safety reasons."

// ErrUnsafe is returned by CheckSafe for statements that are not a single
// read-only SELECT.
var ErrUnsafe = errors.New("statement is not a single read-only SELECT")

var (
	selectShape = regexp.MustCompile(`(?is)^\s*select\s+.+?\s+from\s+[a-z0-9_]+`)
	// Whole words only, so columns such as created_at pass.
	forbiddenWord = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate|replace|attach|detach|pragma|vacuum|reindex)\b`)
)

// CheckSafe rejects anything but one SELECT ... FROM statement. A single
// trailing semicolon is allowed.
func CheckSafe(sql string) error {
	s := strings.TrimSpace(sql)
	s = strings.TrimSuffix(s, ";")
	if s == "" {
		return fmt.Errorf("%w: empty statement", ErrUnsafe)
	}
	if strings.Contains(s, ";") {
		return fmt.Errorf("%w: multiple statements", ErrUnsafe)
	}
	if w := forbiddenWord.FindString(s); w != "" {
		return fmt.Errorf("%w: contains %s", ErrUnsafe, strings.ToUpper(w))
	}
	if !selectShape.MatchString(s) {
		return fmt.Errorf("%w: not a SELECT ... FROM statement", ErrUnsafe)
	}
	return nil
}
