package monitor

import "github.com/fuomag9/checkpulse/internal/models"

// Decision is the classified verdict of one probe
type Decision struct {
	State          models.State
	AlertWarranted bool
}

// Classify maps an outcome to up or down and decides whether the owner must be
// alerted. Only a change from a previously recorded state warrants an alert,
// so the first probe of a check never alerts.
func Classify(check *models.Check, outcome Outcome) Decision {
	state := models.StateDown
	if !outcome.Failed() && outcome.ResponseCode != nil && check.IsSuccessCode(*outcome.ResponseCode) {
		state = models.StateUp
	}

	return Decision{
		State:          state,
		AlertWarranted: check.HasBeenProbed() && check.PreviousState() != state,
	}
}
