package models

import (
	"fmt"
	"strings"
)

// Record store collections
const (
	CollectionUsers  = "users"
	CollectionTokens = "tokens"
	CollectionChecks = "checks"
)

const (
	CheckIDLength = 20
	PhoneLength   = 10

	MinTimeoutSeconds = 1
	MaxTimeoutSeconds = 5
)

// State is the classified verdict of the most recent probe
type State string

const (
	StateUnknown State = ""
	StateUp      State = "up"
	StateDown    State = "down"
)

// Check represents a user configured endpoint monitoring definition
type Check struct {
	ID             string `json:"id"`
	UserPhone      string `json:"userPhone"`
	Protocol       string `json:"protocol"` // http, https
	URL            string `json:"url"`      // host and path, no scheme
	Method         string `json:"method"`   // get, post, put, delete
	SuccessCodes   []int  `json:"successCodes"`
	TimeoutSeconds int    `json:"timeoutSeconds"`

	// Written only by the engine after a probe
	State       State  `json:"state,omitempty"`
	LastChecked *int64 `json:"lastChecked,omitempty"` // ms since epoch, nil before the first probe
	LastStatus  *int   `json:"lastStatus,omitempty"`
}

// HasBeenProbed reports whether the check was classified at least once before
func (c *Check) HasBeenProbed() bool {
	return c.LastChecked != nil
}

// PreviousState returns the persisted state, treating unknown as down
func (c *Check) PreviousState() State {
	if c.State == StateUp {
		return StateUp
	}
	return StateDown
}

// Target returns the absolute URL probed for this check
func (c *Check) Target() string {
	return c.Protocol + "://" + c.URL
}

// IsSuccessCode reports whether code is one of the check's success codes
func (c *Check) IsSuccessCode(code int) bool {
	for _, sc := range c.SuccessCodes {
		if sc == code {
			return true
		}
	}
	return false
}

// AlertMessage formats the transition message sent to the owning user
func (c *Check) AlertMessage() string {
	return fmt.Sprintf("Alert: Your check for %s %s is currently %s",
		strings.ToUpper(c.Method), c.Target(), c.State)
}
