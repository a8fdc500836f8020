package types

// Event is a structured record of a booking state transition. Attributes are
// flat string pairs so downstream consumers can index them without schema
// knowledge.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
