package monitor

import (
	"encoding/json"

	"github.com/fuomag9/checkpulse/internal/models"
)

const (
	// TimeoutCause is the failure value recorded when a probe exceeds its timeout
	TimeoutCause = "timeout"
	// ForbiddenCause is recorded instead of probing a target the guard refuses
	ForbiddenCause = "forbidden target"
)

// ProbeFailure describes why a probe produced no response
type ProbeFailure struct {
	Value string
}

// Outcome is the raw result of one probe. Exactly one of Failure and
// ResponseCode is set.
type Outcome struct {
	Failure      *ProbeFailure
	ResponseCode *int
}

// ResponseOutcome builds the outcome of a probe that received a response
func ResponseOutcome(code int) Outcome {
	return Outcome{ResponseCode: &code}
}

// FailureOutcome builds the outcome of a probe that failed with cause
func FailureOutcome(cause string) Outcome {
	return Outcome{Failure: &ProbeFailure{Value: cause}}
}

// Failed reports whether the probe produced no response
func (o Outcome) Failed() bool {
	return o.Failure != nil
}

type outcomeFailureJSON struct {
	Error bool   `json:"error"`
	Value string `json:"value"`
}

type outcomeJSON struct {
	Error        interface{} `json:"error"`
	ResponseCode *int        `json:"responseCode"`
}

// MarshalJSON renders "error" as false or {"error":true,"value":cause}
func (o Outcome) MarshalJSON() ([]byte, error) {
	out := outcomeJSON{Error: false, ResponseCode: o.ResponseCode}
	if o.Failure != nil {
		out.Error = outcomeFailureJSON{Error: true, Value: o.Failure.Value}
		out.ResponseCode = nil
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the shape produced by MarshalJSON
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var raw struct {
		Error        json.RawMessage `json:"error"`
		ResponseCode *int            `json:"responseCode"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*o = Outcome{ResponseCode: raw.ResponseCode}

	var failure outcomeFailureJSON
	if len(raw.Error) > 0 && json.Unmarshal(raw.Error, &failure) == nil && failure.Error {
		o.Failure = &ProbeFailure{Value: failure.Value}
		o.ResponseCode = nil
	}
	return nil
}

// LogEntry is one line of a check's probe log
type LogEntry struct {
	Check   *models.Check `json:"check"` // as it was before this probe
	Outcome Outcome       `json:"outcome"`
	State   models.State  `json:"state"`
	Alert   bool          `json:"alert"`
	Time    int64         `json:"time"` // ms since epoch
}
