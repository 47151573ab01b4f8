package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/panelguard-project/panelguard/internal/events"
)

// journaledEvents is the set of event types persisted to the journal.
// Lifecycle events (shutdown, config changes) stay out of it.
var journaledEvents = []events.EventType{
	events.EventArmDisarm,
	events.EventAlarm,
	events.EventSOS,
	events.EventSensorActivity,
	events.EventSensorChange,
	events.EventDoorOpenClose,
	events.EventDoorOpenWhenArming,
	events.EventLowBattery,
	events.EventRemoteButton,
	events.EventStateChange,
	events.EventCloudConnected,
	events.EventCloudDisconnected,
	events.EventCloudHello,
}

// JournalEntry is a persisted panel event.
type JournalEntry struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Journal persists panel events to SQLite.
type Journal struct {
	db *Database
}

// NewJournal creates the journal schema on the given database.
func NewJournal(database *Database) (*Journal, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS panel_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		source TEXT NOT NULL,
		payload TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_panel_events_type ON panel_events(type);
	CREATE INDEX IF NOT EXISTS idx_panel_events_created ON panel_events(created_at);
	`
	if _, err := database.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	return &Journal{db: database}, nil
}

// Attach subscribes the journal to all panel event types on the bus.
func (j *Journal) Attach(bus *events.EventBus) {
	for _, et := range journaledEvents {
		bus.Subscribe(et, "journal."+string(et), j.onEvent)
	}
}

func (j *Journal) onEvent(ctx context.Context, event events.Event) error {
	return j.Record(event)
}

// Record persists a single event.
func (j *Journal) Record(event events.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		log.Warn().Err(err).Str("type", string(event.Type)).
			Msg("failed to marshal event payload for journal")
		payload = []byte("null")
	}

	_, err = j.db.Exec(
		"INSERT INTO panel_events (type, source, payload, created_at) VALUES (?, ?, ?, ?)",
		string(event.Type), event.Source, string(payload), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Recent returns the most recent entries, newest first. A typeFilter of ""
// returns all types.
func (j *Journal) Recent(limit int, typeFilter string) ([]JournalEntry, error) {
	if limit < 1 {
		limit = 100
	}

	query := "SELECT id, type, source, payload, created_at FROM panel_events"
	args := []interface{}{}
	if typeFilter != "" {
		query += " WHERE type = ?"
		args = append(args, typeFilter)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var payload string
		var created int64
		if err := rows.Scan(&e.ID, &e.Type, &e.Source, &payload, &created); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		e.CreatedAt = time.Unix(created, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the total number of journaled events.
func (j *Journal) Count() (int64, error) {
	var n int64
	if err := j.db.QueryRow("SELECT COUNT(*) FROM panel_events").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count journal events: %w", err)
	}
	return n, nil
}

// CountByType returns event counts grouped by type.
func (j *Journal) CountByType() (map[string]int64, error) {
	rows, err := j.db.Query("SELECT type, COUNT(*) FROM panel_events GROUP BY type")
	if err != nil {
		return nil, fmt.Errorf("failed to count journal events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var t string
		var n int64
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

// Prune deletes entries older than the given retention period and returns the
// number of rows removed.
func (j *Journal) Prune(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	res, err := j.db.Exec("DELETE FROM panel_events WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return res.RowsAffected()
}
