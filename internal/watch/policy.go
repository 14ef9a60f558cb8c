package watch

import (
	"fmt"

	"github.com/nerrad567/doorgate/internal/infrastructure/config"
)

// Kind selects the topic and publish policy for a watched file.
type Kind string

// Supported kinds.
const (
	KindCommands Kind = config.KindCommands
	KindDatabase Kind = config.KindDatabase
	KindFirmware Kind = config.KindFirmware
	KindLogs     Kind = config.KindLogs
)

// PostAction is what happens to a file after a successful publish.
type PostAction int

const (
	// Keep leaves the file where it is.
	Keep PostAction = iota
	// Delete removes the file.
	Delete
)

func (a PostAction) String() string {
	if a == Delete {
		return "delete"
	}
	return "keep"
}

// Policy is the publish behaviour for one kind.
type Policy struct {
	QoS    byte
	Retain bool
	After  PostAction
}

// The database snapshot is retained so a controller that connects later
// still gets the current card list.
var policies = map[Kind]Policy{
	KindCommands: {QoS: 0, Retain: false, After: Delete},
	KindDatabase: {QoS: 2, Retain: true, After: Keep},
	KindFirmware: {QoS: 0, Retain: false, After: Keep},
	KindLogs:     {QoS: 1, Retain: false, After: Delete},
}

// PolicyFor returns the policy for k.
func PolicyFor(k Kind) (Policy, error) {
	p, ok := policies[k]
	if !ok {
		return Policy{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, k)
	}
	return p, nil
}
