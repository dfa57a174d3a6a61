package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/openclaw/mpc-relay-go/internal/errors"
	"github.com/openclaw/mpc-relay-go/internal/model"
)

// decodeBody reads a JSON object body. An empty body decodes as {}.
func decodeBody(r *http.Request, dst any) error {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return apperrors.ValidationError("Invalid request body")
	}
	return decodeRaw(raw, dst)
}

func decodeRaw(raw []byte, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return apperrors.InvalidInput(typeErr.Field, "has the wrong type")
		}
		return apperrors.ValidationError("Invalid request body")
	}
	return nil
}

// number accepts a JSON number or a numeric string. A value that is
// present but not numeric decodes to NaN.
type number struct {
	value float64
	set   bool
}

func (n *number) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*n = number{}
	case float64:
		*n = number{value: t, set: true}
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			*n = number{}
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			f = math.NaN()
		}
		*n = number{value: f, set: true}
	default:
		*n = number{value: math.NaN(), set: true}
	}
	return nil
}

func (n number) finite() bool {
	return n.set && !math.IsNaN(n.value) && !math.IsInf(n.value, 0)
}

// float returns the raw value, or 0 when absent.
func (n number) float() float64 {
	if !n.set {
		return 0
	}
	return n.value
}

// intField returns nil for absent or non-numeric values. Fractional
// values and values outside the INT column range are rejected.
func (n number) intField(field string) (*int, error) {
	if !n.finite() {
		return nil, nil
	}
	if n.value != math.Trunc(n.value) || n.value < math.MinInt32 || n.value > math.MaxInt32 {
		return nil, apperrors.InvalidInput(field, "must be a 32-bit integer")
	}
	v := int(n.value)
	return &v, nil
}

// int64Field is intField for BIGINT columns. Absent values are 0.
func (n number) int64Field(field string) (int64, error) {
	if !n.finite() {
		return 0, nil
	}
	// float64(math.MaxInt64) rounds up to 2^63, which is out of range.
	if n.value != math.Trunc(n.value) || n.value < math.MinInt64 || n.value >= math.MaxInt64 {
		return 0, apperrors.InvalidInput(field, "must be a 64-bit integer")
	}
	return int64(n.value), nil
}

// text accepts a JSON string or number.
type text string

func (s *text) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*s = ""
	case string:
		*s = text(t)
	case float64:
		*s = text(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		*s = text(strconv.FormatBool(t))
	default:
		return errors.New("expected a string or number")
	}
	return nil
}

func (s text) trimmed() string {
	return strings.TrimSpace(string(s))
}

// stringList accepts an array, a JSON array encoded as a string, or a
// comma-separated string. Items are trimmed and empty items dropped.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	raw := string(data)
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		raw = s
	} else if !strings.HasPrefix(strings.TrimSpace(raw), "[") {
		*l = nil
		return nil
	}

	out := stringList{}
	for _, item := range model.ParseStringList(raw) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*l = out
	return nil
}

func queryNumber(r *http.Request, key string) *float64 {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func queryInt(r *http.Request, key string) *int {
	v := queryNumber(r, key)
	if v == nil {
		return nil
	}
	// Limits are clamped downstream; saturate instead of wrapping.
	f := math.Max(math.MinInt32, math.Min(math.MaxInt32, *v))
	n := int(f)
	return &n
}
