package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Millis is an epoch-millisecond timestamp. It is stored as BIGINT and
// serialized on the wire as a decimal string.
type Millis int64

func MillisOf(t time.Time) Millis {
	return Millis(t.UnixMilli())
}

func (m Millis) String() string {
	return strconv.FormatInt(int64(m), 10)
}

func (m Millis) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

func (m *Millis) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if raw == "" || raw == "null" {
		*m = 0
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid millisecond timestamp %q", raw)
	}
	*m = Millis(int64(v))
	return nil
}

// Payload is an opaque JSON value that round-trips byte for byte through
// the store and the wire. Stored text that is not valid JSON is emitted
// as a JSON string.
type Payload []byte

func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	if json.Valid(p) {
		return p, nil
	}
	return json.Marshal(string(p))
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	if p == nil {
		return fmt.Errorf("model.Payload: UnmarshalJSON on nil pointer")
	}
	*p = append((*p)[0:0], data...)
	return nil
}

func (p *Payload) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = nil
	case []byte:
		*p = append(Payload(nil), v...)
	case string:
		*p = Payload(v)
	default:
		return fmt.Errorf("model.Payload: cannot scan %T", src)
	}
	return nil
}

func (p Payload) Value() (driver.Value, error) {
	return string(p), nil
}

// OrDefault returns p, or def when p is empty or JSON null.
func (p Payload) OrDefault(def string) Payload {
	trimmed := bytes.TrimSpace(p)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Payload(def)
	}
	return p
}

// StringList is persisted as a JSON array in a text column. Legacy
// comma-separated values are accepted on read.
type StringList []string

func (l *StringList) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return fmt.Errorf("model.StringList: cannot scan %T", src)
	}
	*l = ParseStringList(raw)
	return nil
}

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l StringList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

func (l StringList) Contains(s string) bool {
	for _, item := range l {
		if item == s {
			return true
		}
	}
	return false
}

// ParseStringList accepts a JSON array or a comma-separated list.
func ParseStringList(raw string) StringList {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return StringList{}
	}
	var items []any
	if err := json.Unmarshal([]byte(raw), &items); err == nil {
		out := make(StringList, 0, len(items))
		for _, item := range items {
			out = append(out, stringify(item))
		}
		return out
	}
	out := StringList{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return "null"
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
