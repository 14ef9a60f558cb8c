package logline

import "encoding/json"

// NoBootCount marks an event whose type tag carried no BOOT#N marker.
const NoBootCount = -1

// Reader ids for the named reader positions.
const (
	ReaderInternal = 1
	ReaderExternal = 2
)

// Kind classifies a log line.
type Kind int

const (
	// KindSystem is a free-text diagnostic or status line. Unknown tags map here.
	KindSystem Kind = iota
	// KindAccess is a card-read attempt at a door.
	KindAccess
)

// String returns the tag word used on the wire.
func (k Kind) String() string {
	switch k {
	case KindAccess:
		return "ACCESS"
	case KindSystem:
		return "SYSTEM"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON encodes the kind as its tag word.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Event is one decoded log line.
//
// ReaderID, Authorized and CardID are meaningful for KindAccess only;
// Message for KindSystem only.
type Event struct {
	Timestamp string
	DoorID    int
	Kind      Kind
	BootCount int

	ReaderID   int
	Authorized bool
	CardID     int64

	Message string
}

type accessJSON struct {
	Timestamp  string `json:"timestamp"`
	DoorID     int    `json:"door_id"`
	Kind       Kind   `json:"kind"`
	BootCount  int    `json:"boot_count"`
	ReaderID   int    `json:"reader_id"`
	Authorized bool   `json:"authorized"`
	CardID     int64  `json:"card_id"`
}

type systemJSON struct {
	Timestamp string `json:"timestamp"`
	DoorID    int    `json:"door_id"`
	Kind      Kind   `json:"kind"`
	BootCount int    `json:"boot_count"`
	Message   string `json:"message"`
}

// MarshalJSON writes the fields that belong to the event's kind. Access
// events always carry reader_id, authorized and card_id, so a denied read
// or card 0 is not lost; system events carry message.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Kind == KindAccess {
		return json.Marshal(accessJSON{
			Timestamp:  e.Timestamp,
			DoorID:     e.DoorID,
			Kind:       e.Kind,
			BootCount:  e.BootCount,
			ReaderID:   e.ReaderID,
			Authorized: e.Authorized,
			CardID:     e.CardID,
		})
	}
	return json.Marshal(systemJSON{
		Timestamp: e.Timestamp,
		DoorID:    e.DoorID,
		Kind:      e.Kind,
		BootCount: e.BootCount,
		Message:   e.Message,
	})
}

// HasBootCount reports whether the line carried a BOOT#N marker.
func (e Event) HasBootCount() bool {
	return e.BootCount != NoBootCount
}
