package models

// User is the owner of checks, keyed by phone in the users collection
type User struct {
	Phone     string   `json:"phone"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Checks    []string `json:"checks,omitempty"`
}
