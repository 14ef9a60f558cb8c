// Package record maps decoded log events onto the two persisted schemas.
package record

import "github.com/nerrad567/doorgate/internal/logline"

// Schema names a persisted record family.
type Schema string

const (
	SchemaAccess Schema = "access"
	SchemaSystem Schema = "system"
)

// AccessRecord is one card-read attempt as stored.
// Uniqueness: (Timestamp, DoorID, BootCount, ReaderID, CardID, Authorized).
type AccessRecord struct {
	BootCount  int    `json:"boot_count"`
	Timestamp  string `json:"timestamp"`
	DoorID     int    `json:"door_id"`
	ReaderID   int    `json:"reader_id"`
	Authorized bool   `json:"authorized"`
	CardID     int64  `json:"card_id"`
}

// SystemRecord is one diagnostic line as stored.
// Uniqueness: (Timestamp, BootCount, DoorID, Message).
type SystemRecord struct {
	BootCount int    `json:"boot_count"`
	Timestamp string `json:"timestamp"`
	DoorID    int    `json:"door_id"`
	Message   string `json:"message"`
}

// Routed tags exactly one of Access or System with its schema.
type Routed struct {
	Schema Schema
	Access *AccessRecord
	System *SystemRecord
}

// Route classifies ev by its kind. It performs no I/O and never fails.
func Route(ev logline.Event) Routed {
	if ev.Kind == logline.KindAccess {
		return Routed{
			Schema: SchemaAccess,
			Access: &AccessRecord{
				BootCount:  ev.BootCount,
				Timestamp:  ev.Timestamp,
				DoorID:     ev.DoorID,
				ReaderID:   ev.ReaderID,
				Authorized: ev.Authorized,
				CardID:     ev.CardID,
			},
		}
	}

	return Routed{
		Schema: SchemaSystem,
		System: &SystemRecord{
			BootCount: ev.BootCount,
			Timestamp: ev.Timestamp,
			DoorID:    ev.DoorID,
			Message:   ev.Message,
		},
	}
}

// DoorID returns the door of whichever record is set.
func (r Routed) DoorID() int {
	if r.Access != nil {
		return r.Access.DoorID
	}
	if r.System != nil {
		return r.System.DoorID
	}
	return 0
}
