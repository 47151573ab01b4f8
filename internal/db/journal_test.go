package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/panelguard-project/panelguard/internal/events"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()

	database, err := NewDatabase(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	journal, err := NewJournal(database)
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	return journal
}

func TestJournalRecordAndRecent(t *testing.T) {
	journal := newTestJournal(t)

	first := events.Event{
		Type:   events.EventArmDisarm,
		Source: events.SourceNotifications,
		Payload: events.ArmDisarmPayload{
			State: events.ArmStateAway,
		},
	}
	second := events.Event{
		Type:   events.EventSensorActivity,
		Source: events.SourceNotifications,
		Payload: events.SensorActivityPayload{
			SensorID:   3,
			SensorName: "Hall",
		},
	}

	if err := journal.Record(first); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := journal.Record(second); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := journal.Recent(10, "")
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}

	// Newest first
	if entries[0].Type != string(events.EventSensorActivity) {
		t.Errorf("first entry type = %q, want sensor_activity", entries[0].Type)
	}
	if entries[1].Type != string(events.EventArmDisarm) {
		t.Errorf("second entry type = %q, want arm_disarm", entries[1].Type)
	}
}

func TestJournalTypeFilter(t *testing.T) {
	journal := newTestJournal(t)

	for i := 0; i < 3; i++ {
		journal.Record(events.Event{Type: events.EventSensorActivity, Source: "test"})
	}
	journal.Record(events.Event{Type: events.EventAlarm, Source: "test"})

	entries, err := journal.Recent(10, string(events.EventAlarm))
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("filtered entries = %d, want 1", len(entries))
	}
	if entries[0].Type != string(events.EventAlarm) {
		t.Errorf("entry type = %q, want alarm", entries[0].Type)
	}
}

func TestJournalCountByType(t *testing.T) {
	journal := newTestJournal(t)

	journal.Record(events.Event{Type: events.EventArmDisarm, Source: "test"})
	journal.Record(events.Event{Type: events.EventArmDisarm, Source: "test"})
	journal.Record(events.Event{Type: events.EventSOS, Source: "test"})

	counts, err := journal.CountByType()
	if err != nil {
		t.Fatalf("CountByType: %v", err)
	}
	if counts[string(events.EventArmDisarm)] != 2 {
		t.Errorf("arm_disarm count = %d, want 2", counts[string(events.EventArmDisarm)])
	}
	if counts[string(events.EventSOS)] != 1 {
		t.Errorf("sos count = %d, want 1", counts[string(events.EventSOS)])
	}

	total, err := journal.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
}

func TestJournalAttachRecordsBusEvents(t *testing.T) {
	journal := newTestJournal(t)

	bus := events.NewEventBus()
	defer bus.Stop()
	journal.Attach(bus)

	bus.Emit(context.Background(), events.Event{
		Type:   events.EventDoorOpenClose,
		Source: events.SourceNotifications,
		Payload: events.DoorOpenClosePayload{
			SensorID:   7,
			SensorName: "Front Door",
			IsOpen:     true,
		},
	})

	// EventShutdown is not a journaled type.
	bus.Emit(context.Background(), events.Event{
		Type:   events.EventShutdown,
		Source: "test",
	})

	entries, err := journal.Recent(10, "")
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Type != string(events.EventDoorOpenClose) {
		t.Errorf("entry type = %q, want door_open_close", entries[0].Type)
	}
}

func TestJournalPrune(t *testing.T) {
	journal := newTestJournal(t)

	// Insert an old entry directly so its timestamp predates the cutoff.
	old := time.Now().Add(-48 * time.Hour).Unix()
	if _, err := journal.db.Exec(
		"INSERT INTO panel_events (type, source, payload, created_at) VALUES (?, ?, ?, ?)",
		"alarm", "test", "null", old,
	); err != nil {
		t.Fatalf("insert old entry: %v", err)
	}
	journal.Record(events.Event{Type: events.EventAlarm, Source: "test"})

	removed, err := journal.Prune(24 * time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	entries, _ := journal.Recent(10, "")
	if len(entries) != 1 {
		t.Errorf("remaining entries = %d, want 1", len(entries))
	}
}
