package monitor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/fuomag9/checkpulse/internal/models"
)

// ErrInvalidCheck is wrapped by every validation failure
var ErrInvalidCheck = errors.New("invalid check")

// ValidationError names the first field of a check record that failed validation
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid check: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidCheck
}

var (
	validProtocols = []string{"http", "https"}
	validMethods   = []string{"get", "post", "put", "delete"}
)

// ValidateCheck parses a raw check record, which may have been edited outside
// the system, into a typed check. Engine fields that are missing or malformed
// are reset rather than rejected: an unknown state compares as down and a
// missing lastChecked marks the check as never probed.
func ValidateCheck(raw []byte) (*models.Check, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, &ValidationError{Field: "record", Reason: "is not a JSON object"}
	}

	check := &models.Check{}
	var ok bool

	if check.ID, ok = stringField(fields, "id"); !ok || len(check.ID) != models.CheckIDLength {
		return nil, &ValidationError{Field: "id", Reason: fmt.Sprintf("must be a %d character string", models.CheckIDLength)}
	}

	if check.UserPhone, ok = stringField(fields, "userPhone"); !ok || len(check.UserPhone) != models.PhoneLength {
		return nil, &ValidationError{Field: "userPhone", Reason: fmt.Sprintf("must be a %d character string", models.PhoneLength)}
	}

	if check.Protocol, ok = stringField(fields, "protocol"); !ok || !contains(validProtocols, check.Protocol) {
		return nil, &ValidationError{Field: "protocol", Reason: "must be one of http, https"}
	}

	url, ok := stringField(fields, "url")
	if check.URL = strings.TrimSpace(url); !ok || check.URL == "" {
		return nil, &ValidationError{Field: "url", Reason: "must be a non-empty string"}
	}

	if check.Method, ok = stringField(fields, "method"); !ok || !contains(validMethods, check.Method) {
		return nil, &ValidationError{Field: "method", Reason: "must be one of get, post, put, delete"}
	}

	if check.SuccessCodes, ok = intArrayField(fields, "successCodes"); !ok || len(check.SuccessCodes) == 0 {
		return nil, &ValidationError{Field: "successCodes", Reason: "must be a non-empty array of integers"}
	}

	timeout, ok := intField(fields, "timeoutSeconds")
	if !ok || timeout < models.MinTimeoutSeconds || timeout > models.MaxTimeoutSeconds {
		return nil, &ValidationError{
			Field:  "timeoutSeconds",
			Reason: fmt.Sprintf("must be an integer between %d and %d", models.MinTimeoutSeconds, models.MaxTimeoutSeconds),
		}
	}
	check.TimeoutSeconds = int(timeout)

	if state, ok := stringField(fields, "state"); ok {
		switch models.State(state) {
		case models.StateUp, models.StateDown:
			check.State = models.State(state)
		}
	}

	if lastChecked, ok := intField(fields, "lastChecked"); ok && lastChecked > 0 {
		check.LastChecked = &lastChecked
	}

	if lastStatus, ok := intField(fields, "lastStatus"); ok {
		status := int(lastStatus)
		check.LastStatus = &status
	}

	return check, nil
}

// NormalizeCheck renders a validated check in its canonical stored form
func NormalizeCheck(check *models.Check) ([]byte, error) {
	return json.Marshal(check)
}

func stringField(fields map[string]json.RawMessage, name string) (string, bool) {
	raw, ok := fields[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func intField(fields map[string]json.RawMessage, name string) (int64, bool) {
	raw, ok := fields[name]
	if !ok {
		return 0, false
	}
	return parseInt(raw)
}

func intArrayField(fields map[string]json.RawMessage, name string) ([]int, bool) {
	raw, ok := fields[name]
	if !ok {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, false
	}

	out := make([]int, 0, len(items))
	for _, item := range items {
		n, ok := parseInt(item)
		if !ok {
			return nil, false
		}
		out = append(out, int(n))
	}
	return out, true
}

// parseInt accepts JSON numbers with an integral value, so 3 and 3.0 both pass
func parseInt(raw json.RawMessage) (int64, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	num, ok := v.(json.Number)
	if !ok {
		return 0, false
	}

	if i, err := num.Int64(); err == nil {
		return i, true
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
