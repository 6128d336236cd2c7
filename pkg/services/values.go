package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Drivers return numerics in different shapes (NUMERIC as string, []byte,
// decimal or float64); these helpers normalize scanned values.

func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case []byte:
		return strings.TrimSpace(string(x))
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return decimal.NewFromFloat(x).String()
	case float32:
		return decimal.NewFromFloat32(x).String()
	case bool:
		return strconv.FormatBool(x)
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return strings.TrimSpace(x.String())
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// rawString keeps padding, used where trailing characters are compared.
func rawString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		return string(x), true
	default:
		return stringValue(x), true
	}
}

func decimalValue(v any) *decimal.Decimal {
	var d decimal.Decimal
	switch x := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		d = x
	case float64:
		d = decimal.NewFromFloat(x)
	case float32:
		d = decimal.NewFromFloat32(x)
	case int64:
		d = decimal.NewFromInt(x)
	case int32:
		d = decimal.NewFromInt(int64(x))
	case int:
		d = decimal.NewFromInt(int64(x))
	default:
		s := stringValue(x)
		if s == "" {
			return nil
		}
		parsed, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
		if err != nil {
			return nil
		}
		d = parsed
	}
	return &d
}

// keyValue binds an identifier as an integer when it looks like one.
// Mistral keys are integers; other installations may use text codes.
func keyValue(s string) any {
	if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return n
	}
	return s
}
