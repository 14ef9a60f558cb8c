package gateway

import (
	"context"
	"fmt"

	"github.com/nerrad567/doorgate/internal/record"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// AccessFilter narrows RecentAccess. A nil DoorID matches every door.
type AccessFilter struct {
	DoorID *int
	Limit  int
}

// SystemFilter narrows RecentSystem. A nil DoorID matches every door.
type SystemFilter struct {
	DoorID *int
	Limit  int
}

// StoredAccess is an access row with its storage metadata.
type StoredAccess struct {
	ID int64 `json:"id"`
	record.AccessRecord
	ReceivedAt string `json:"received_at"`
}

// StoredSystem is a system row with its storage metadata.
type StoredSystem struct {
	ID int64 `json:"id"`
	record.SystemRecord
	ReceivedAt string `json:"received_at"`
}

// Totals summarises the stored events.
type Totals struct {
	AccessEvents int64 `json:"access_events"`
	AccessDenied int64 `json:"access_denied"`
	SystemEvents int64 `json:"system_events"`
	Doors        int64 `json:"doors"`
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultQueryLimit
	case n > maxQueryLimit:
		return maxQueryLimit
	default:
		return n
	}
}

// doorClause returns the WHERE fragment and args for an optional door filter.
func doorClause(door *int) (string, []interface{}) {
	if door == nil {
		return "", nil
	}
	return " WHERE door_id = ?", []interface{}{*door}
}

// RecentAccess returns the newest access rows first.
func (g *Gateway) RecentAccess(ctx context.Context, f AccessFilter) ([]StoredAccess, error) {
	where, args := doorClause(f.DoorID)
	args = append(args, clampLimit(f.Limit))

	rows, err := g.store.QueryContext(ctx,
		`SELECT id, boot_count, timestamp, door_id, reader_id, authorized, card_id, received_at
		 FROM `+tableAccess+where+` ORDER BY id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying access events: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only

	out := []StoredAccess{}
	for rows.Next() {
		var s StoredAccess
		if err := rows.Scan(&s.ID, &s.BootCount, &s.Timestamp, &s.DoorID,
			&s.ReaderID, &s.Authorized, &s.CardID, &s.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scanning access event: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access events: %w", err)
	}
	return out, nil
}

// RecentSystem returns the newest system rows first.
func (g *Gateway) RecentSystem(ctx context.Context, f SystemFilter) ([]StoredSystem, error) {
	where, args := doorClause(f.DoorID)
	args = append(args, clampLimit(f.Limit))

	rows, err := g.store.QueryContext(ctx,
		`SELECT id, boot_count, timestamp, door_id, message, received_at
		 FROM `+tableSystem+where+` ORDER BY id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying system events: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only

	out := []StoredSystem{}
	for rows.Next() {
		var s StoredSystem
		if err := rows.Scan(&s.ID, &s.BootCount, &s.Timestamp, &s.DoorID,
			&s.Message, &s.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scanning system event: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating system events: %w", err)
	}
	return out, nil
}

// Counts returns row totals across both tables.
func (g *Gateway) Counts(ctx context.Context) (Totals, error) {
	rows, err := g.store.QueryContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM `+tableAccess+`),
			(SELECT COUNT(*) FROM `+tableAccess+` WHERE authorized = 0),
			(SELECT COUNT(*) FROM `+tableSystem+`),
			(SELECT COUNT(*) FROM (
				SELECT door_id FROM `+tableAccess+`
				UNION
				SELECT door_id FROM `+tableSystem+`))`)
	if err != nil {
		return Totals{}, fmt.Errorf("counting events: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only

	var t Totals
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Totals{}, fmt.Errorf("counting events: %w", err)
		}
		return t, nil
	}
	if err := rows.Scan(&t.AccessEvents, &t.AccessDenied, &t.SystemEvents, &t.Doors); err != nil {
		return Totals{}, fmt.Errorf("scanning counts: %w", err)
	}
	return t, nil
}
