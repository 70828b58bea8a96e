package model

// Event is a row of the events table. Date and Time are free text; the
// backend owns their format.
type Event struct {
	ID      int64  `json:"id,omitempty"`
	Frat    string `json:"frat"`
	Date    string `json:"date"`
	Time    string `json:"time"`
	Details string `json:"details"`
}

func (e Event) RecordID() int64 { return e.ID }
