package model

// Record is implemented by every row kind a list screen can show. A zero
// RecordID means the record is a draft that has not been persisted.
type Record interface {
	RecordID() int64
}

const (
	EventsTable = "events"
	FratsTable  = "frats"
)
