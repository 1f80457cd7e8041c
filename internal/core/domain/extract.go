package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
)

var (
	ErrNoRows    = errors.New("query returned no rows")
	ErrNonFinite = errors.New("value is not a finite number")
)

// FirstScalar extracts the first column of the first row as a number.
// Every built-in check issues a single-value aggregate, so this is the
// default extractor.
func FirstScalar(rows []Row) (float64, error) {
	if len(rows) == 0 {
		return 0, ErrNoRows
	}
	if len(rows[0]) == 0 {
		return 0, fmt.Errorf("first row has no columns")
	}
	v, err := ToFloat(rows[0][0])
	if err != nil {
		return 0, fmt.Errorf("extracting scalar: %w", err)
	}
	return v, nil
}

// ToFloat converts the numeric shapes produced by the executors (JSON numbers
// decoded with UseNumber, pgx integer and numeric types) into a float64.
// NaN and infinities are rejected; Trino sends them as "NaN" and "Infinity".
func ToFloat(v any) (float64, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if !IsFinite(f) {
		return 0, fmt.Errorf("%w: %v", ErrNonFinite, f)
	}
	return f, nil
}

// IsFinite reports whether f is neither NaN nor an infinity.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, fmt.Errorf("value is NULL")
	case json.Number:
		return n.Float64()
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not numeric", n)
		}
		return f, nil
	case *big.Int:
		f, _ := new(big.Float).SetInt(n).Float64()
		return f, nil
	case fmt.Stringer:
		f, err := strconv.ParseFloat(n.String(), 64)
		if err != nil {
			return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// FormatObserved renders an observed value for reports; nil renders as "-".
func FormatObserved(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatNumber(*v)
}
