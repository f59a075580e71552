package normalize

import (
	"math"
	"strconv"
	"strings"
)

// stringify renders a primitive the way it reads inside a text template.
// null reads as "null".
func stringify(v Value) (string, error) {
	switch v.kind {
	case KindNull:
		return "null", nil
	case KindString:
		return v.str, nil
	case KindNumber:
		return formatNumber(v.num), nil
	case KindBool:
		return strconv.FormatBool(v.b), nil
	}
	return "", errNested
}

// joinElement renders a primitive as an element of a joined list, where
// null reads as the empty string.
func joinElement(v Value) (string, error) {
	if v.kind == KindNull {
		return "", nil
	}
	return stringify(v)
}

// formatNumber renders f in the shortest round-trip form, switching to
// exponent notation outside [1e-6, 1e21) as ECMAScript's Number#toString does.
func formatNumber(f float64) string {
	switch {
	case f == 0:
		return "0"
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}

	exp := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, power, _ := strings.Cut(exp, "e")
	n, err := strconv.Atoi(power)
	if err != nil {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	if n >= -6 && n < 21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	sign := "+"
	if n < 0 {
		sign = "-"
		n = -n
	}
	return mantissa + "e" + sign + strconv.Itoa(n)
}
