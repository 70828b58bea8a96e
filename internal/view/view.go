// Package view turns records into display cards. Records with missing
// fields render with fallback text; records with no identifier are skipped.
package view

import (
	"strconv"
	"strings"

	"github.com/dukerupert/knightlife/internal/model"
)

const (
	fallbackName    = "Unknown"
	fallbackAbbrev  = "N/A"
	fallbackAddress = "Address not provided"
	fallbackDetails = "No extra details provided yet"
)

// Card is one rendered list row.
type Card struct {
	Key      string `json:"key"`
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Address  string `json:"address,omitempty"`
	Details  string `json:"details"`
	// Muted marks Details as fallback text.
	Muted     bool `json:"muted"`
	Expanded  bool `json:"expanded"`
	Deletable bool `json:"deletable"`
}

// EmptyState is the copy shown for an empty list.
type EmptyState struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

// Key returns the list key for a row: the identifier when present, the
// prefixed index otherwise.
func Key(id int64, index int, prefix string) string {
	if id != 0 {
		return strconv.FormatInt(id, 10)
	}
	return prefix + "-" + strconv.Itoa(index)
}

func EventCards(events []model.Event, admin bool) []Card {
	cards := make([]Card, 0, len(events))
	for i, e := range events {
		if e.ID == 0 {
			continue
		}
		c := Card{
			Key:       Key(e.ID, i, "event"),
			ID:        e.ID,
			Title:     or(e.Frat, fallbackName),
			Subtitle:  when(e.Date, e.Time),
			Details:   strings.TrimSpace(e.Details),
			Expanded:  true,
			Deletable: admin,
		}
		cards = append(cards, c)
	}
	return cards
}

// FratCards renders the directory. Only the card matching expandedID shows
// its details and, in admin mode, its delete control.
func FratCards(frats []model.Frat, expandedID int64, admin bool) []Card {
	cards := make([]Card, 0, len(frats))
	for i, f := range frats {
		if f.ID == 0 {
			continue
		}
		c := Card{
			Key:      Key(f.ID, i, "frat"),
			ID:       f.ID,
			Title:    or(f.Name, fallbackName),
			Subtitle: "Known as " + or(f.Abbreviation, fallbackAbbrev),
			Address:  or(f.Address, fallbackAddress),
			Expanded: f.ID == expandedID,
		}
		if c.Expanded {
			c.Details = or(f.Details, fallbackDetails)
			c.Muted = strings.TrimSpace(f.Details) == ""
			c.Deletable = admin
		}
		cards = append(cards, c)
	}
	return cards
}

// Toggle returns the expanded id after tapping id.
func Toggle(expandedID, id int64) int64 {
	if expandedID == id {
		return 0
	}
	return id
}

func Empty(noun string) EmptyState {
	return EmptyState{
		Title:    "No " + noun + "s added yet",
		Subtitle: "Admins can add " + noun + "s from the console below.",
	}
}

func or(s, fallback string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return fallback
}

func when(date, time string) string {
	date, time = strings.TrimSpace(date), strings.TrimSpace(time)
	switch {
	case date != "" && time != "":
		return date + " @ " + time
	case date != "":
		return date
	default:
		return time
	}
}
