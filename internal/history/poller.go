// Package history polls the panel's event log and replays unseen
// records as synthetic alerts, covering panels whose push notifications
// never arrive (cloud-only firmware, filtered UDP).
package history

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/panelguard-project/panelguard/internal/alerts"
	"github.com/panelguard-project/panelguard/internal/events"
	"github.com/panelguard-project/panelguard/internal/local"
)

// DefaultInterval between polls.
const DefaultInterval = 30 * time.Second

const firstPageSize = local.PageSize

// Source is the slice of the panel client the poller needs.
type Source interface {
	HistoryPage(ctx context.Context, start, count int) ([]local.HistoryEntry, int, error)
	History(ctx context.Context, start, end int) ([]local.HistoryEntry, error)
}

// Poller fetches history on an interval and emits records not yet seen.
// Seen-ness is tracked with a high-water mark on the panel's total
// record count: the log is append-only and newest-first, so records
// beyond the previous total are exactly the unseen ones. The mark lives
// for the poller's lifetime; a restart re-baselines without backfill.
type Poller struct {
	source   Source
	bus      *events.EventBus
	decoder  *alerts.Decoder
	interval time.Duration
	log      zerolog.Logger

	mark    int
	markSet bool
}

func NewPoller(source Source, bus *events.EventBus, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		source:   source,
		bus:      bus,
		decoder:  alerts.NewDecoder(),
		interval: interval,
		log:      log.With().Str("component", "history").Logger(),
	}
}

// Run polls until ctx is canceled. The first poll only records the
// current high-water mark so pre-existing history is not replayed.
// Poll failures are logged and the next tick proceeds normally.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info().Dur("interval", p.interval).Msg("history poller started")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("history poller stopped")
			return nil
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	entries, total, err := p.source.HistoryPage(ctx, 1, firstPageSize)
	if err != nil {
		p.log.Warn().Err(err).Msg("history poll failed")
		return
	}

	if !p.markSet {
		p.mark = total
		p.markSet = true
		p.log.Debug().Int("total", total).Msg("history baseline set")
		return
	}
	if total < p.mark {
		// History was wiped on the panel; re-baseline.
		p.log.Info().Int("total", total).Int("mark", p.mark).
			Msg("history shrank, resetting baseline")
		p.mark = total
		return
	}
	unseen := total - p.mark
	if unseen == 0 {
		return
	}
	if unseen > len(entries) {
		entries, err = p.source.History(ctx, 1, unseen)
		if err != nil {
			p.log.Warn().Err(err).Msg("history poll failed")
			return
		}
	} else {
		entries = entries[:unseen]
	}

	// Entries come newest first; replay oldest first so observers see
	// them in the order they happened.
	for i := len(entries) - 1; i >= 0; i-- {
		p.emit(ctx, entries[i])
	}
	p.mark = total
	p.log.Debug().Int("replayed", len(entries)).Int("mark", p.mark).
		Msg("history records replayed")
}

// emit converts one history record to the alert shape and dispatches it
// through the shared classifier, so synthetic events are
// indistinguishable in kind from live ones.
func (p *Poller) emit(ctx context.Context, entry local.HistoryEntry) {
	ev, err := p.decoder.ClassifyAlert(alerts.Alert{
		Type:     entry.Type,
		EventID:  entry.EventID,
		Source:   entry.SourceData,
		State:    entry.StateData,
		ZoneName: entry.SensorName,
		UnixTime: entry.UnixTime,
	})
	if err != nil {
		p.log.Warn().Err(err).Int("type", entry.Type).
			Msg("skipping unclassifiable history record")
		return
	}
	ev.Source = events.SourceHistory
	p.bus.Emit(ctx, ev)
}
