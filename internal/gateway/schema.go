package gateway

// Table names. Queries are built only from these constants.
const (
	tableAccess = "access_events"
	tableSystem = "system_events"
)

// boot_count is NOT NULL: SQLite treats NULLs as distinct inside UNIQUE
// constraints, so a missing boot count is stored as -1.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ` + tableAccess + ` (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		boot_count  INTEGER NOT NULL,
		timestamp   TEXT    NOT NULL,
		door_id     INTEGER NOT NULL,
		reader_id   INTEGER NOT NULL,
		authorized  INTEGER NOT NULL,
		card_id     INTEGER NOT NULL,
		received_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
		UNIQUE (timestamp, door_id, boot_count, reader_id, card_id, authorized)
	)`,
	`CREATE TABLE IF NOT EXISTS ` + tableSystem + ` (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		boot_count  INTEGER NOT NULL,
		timestamp   TEXT    NOT NULL,
		door_id     INTEGER NOT NULL,
		message     TEXT    NOT NULL,
		received_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
		UNIQUE (timestamp, boot_count, door_id, message)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_access_events_timestamp ON ` + tableAccess + ` (timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_access_events_door ON ` + tableAccess + ` (door_id, id)`,
	`CREATE INDEX IF NOT EXISTS idx_system_events_timestamp ON ` + tableSystem + ` (timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_system_events_door ON ` + tableSystem + ` (door_id, id)`,
}

const insertAccess = `INSERT INTO ` + tableAccess + `
	(boot_count, timestamp, door_id, reader_id, authorized, card_id)
	VALUES (?, ?, ?, ?, ?, ?)`

const insertSystem = `INSERT INTO ` + tableSystem + `
	(boot_count, timestamp, door_id, message)
	VALUES (?, ?, ?, ?)`
