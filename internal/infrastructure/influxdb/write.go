package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/doorgate/internal/record"
)

// Measurements written by the mirror.
const (
	MeasurementAccess = "door_access"
	MeasurementSystem = "door_system"
)

// timestampLayouts are tried in order for non-numeric controller timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// WriteRecord mirrors one newly stored record. It never blocks; failures
// surface through the SetOnError callback.
func (c *Client) WriteRecord(r record.Routed) {
	if !c.IsConnected() {
		return
	}
	if p := pointFor(r, time.Now()); p != nil {
		c.writeAPI.WritePoint(p)
	}
}

// pointFor converts a record into a point. received is used when the
// record's timestamp cannot be interpreted.
func pointFor(r record.Routed, received time.Time) *write.Point {
	switch {
	case r.Access != nil:
		a := r.Access
		result := "denied"
		if a.Authorized {
			result = "authorized"
		}
		return write.NewPoint(
			MeasurementAccess,
			map[string]string{
				"door_id": strconv.Itoa(a.DoorID),
				"result":  result,
			},
			map[string]interface{}{
				"reader_id":  a.ReaderID,
				"card_id":    a.CardID,
				"authorized": a.Authorized,
				"boot_count": a.BootCount,
			},
			parseTimestamp(a.Timestamp, received),
		)
	case r.System != nil:
		s := r.System
		return write.NewPoint(
			MeasurementSystem,
			map[string]string{
				"door_id": strconv.Itoa(s.DoorID),
			},
			map[string]interface{}{
				"message":    s.Message,
				"boot_count": s.BootCount,
			},
			parseTimestamp(s.Timestamp, received),
		)
	default:
		return nil
	}
}

// parseTimestamp accepts Unix seconds (the controller clock) or one of
// timestampLayouts, falling back to received.
func parseTimestamp(ts string, received time.Time) time.Time {
	if secs, err := strconv.ParseInt(ts, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC()
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t
		}
	}
	return received
}
