package model

import (
	"errors"
	"strings"
)

// ErrMissingFields is returned by Frat.Validate when a required field is blank.
var ErrMissingFields = errors.New("name, abbreviation, and address are required")

// Frat is a directory entry of the frats table.
type Frat struct {
	ID           int64  `json:"id,omitempty"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
	Address      string `json:"address"`
	Details      string `json:"details"`
}

func (f Frat) RecordID() int64 { return f.ID }

// Validate performs the presence checks required before an insert.
func (f Frat) Validate() error {
	if strings.TrimSpace(f.Name) == "" ||
		strings.TrimSpace(f.Abbreviation) == "" ||
		strings.TrimSpace(f.Address) == "" {
		return ErrMissingFields
	}
	return nil
}
