package local

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/panelguard-project/panelguard/internal/events"
	"github.com/panelguard-project/panelguard/internal/protocol"
)

// Client exposes typed panel operations on top of the command
// transport.
type Client struct {
	t   *Transport
	log zerolog.Logger
}

// NewClient wraps a transport.
func NewClient(t *Transport) *Client {
	return &Client{
		t:   t,
		log: log.With().Str("component", "panel").Logger(),
	}
}

// Transport returns the underlying command transport.
func (c *Client) Transport() *Transport { return c.t }

// HostInfo queries panel identity and radio module state.
func (c *Client) HostInfo(ctx context.Context) (*HostInfo, error) {
	fields, err := c.t.SendCommand(ctx, CmdGetHostInfo, nil)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: empty host info reply", ErrDevice)
	}
	var info HostInfo
	if err := protocol.UnmarshalFields(fields, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// HostStatus queries the current arm state and panel identity.
func (c *Client) HostStatus(ctx context.Context) (*HostStatus, error) {
	fields, err := c.t.SendCommand(ctx, CmdGetHostStatus, nil)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: empty host status reply", ErrDevice)
	}
	var status HostStatus
	if err := protocol.UnmarshalFields(fields, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SetArmState switches the panel arm state.
func (c *Client) SetArmState(ctx context.Context, state events.ArmState) error {
	if state != events.ArmStateAway && state != events.ArmStateHome && state != events.ArmStateDisarm {
		return fmt.Errorf("%w: arm state %d not settable", ErrDevice, state)
	}
	c.log.Info().Stringer("state", state).Msg("setting arm state")
	_, err := c.t.SendCommand(ctx, CmdSetHostStatus, []int{int(state)})
	return err
}

// ArmAway arms the panel in away mode.
func (c *Client) ArmAway(ctx context.Context) error {
	return c.SetArmState(ctx, events.ArmStateAway)
}

// ArmHome arms the panel in home mode.
func (c *Client) ArmHome(ctx context.Context) error {
	return c.SetArmState(ctx, events.ArmStateHome)
}

// Disarm disarms the panel.
func (c *Client) Disarm(ctx context.Context) error {
	return c.SetArmState(ctx, events.ArmStateDisarm)
}

// Sensors retrieves the full sensor list.
func (c *Client) Sensors(ctx context.Context) ([]Sensor, error) {
	records, err := c.t.FetchPaginated(ctx, CmdGetSensorList, 1, 0)
	if err != nil {
		return nil, err
	}
	sensors := make([]Sensor, 0, len(records))
	for _, rec := range records {
		var s Sensor
		if err := protocol.UnmarshalRecord(rec.Fields, &s); err != nil {
			c.log.Warn().Err(err).Int("index", rec.Index).
				Msg("skipping undecodable sensor record")
			continue
		}
		s.ProtoIndex = rec.Index
		sensors = append(sensors, s)
	}
	return sensors, nil
}

// Devices retrieves the relay list. Multi-node relays are expanded to
// one Device per node.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	records, err := c.t.FetchPaginated(ctx, CmdGetDeviceList, 1, 0)
	if err != nil {
		return nil, err
	}
	var devices []Device
	for _, rec := range records {
		var s Sensor
		if err := protocol.UnmarshalRecord(rec.Fields, &s); err != nil {
			c.log.Warn().Err(err).Int("index", rec.Index).
				Msg("skipping undecodable device record")
			continue
		}
		s.ProtoIndex = rec.Index
		nodes := s.NodeCount
		if nodes < 1 {
			nodes = 1
		}
		for sub := 0; sub < nodes; sub++ {
			devices = append(devices, Device{Sensor: s, Subindex: sub})
		}
	}
	return devices, nil
}

// TurnOn switches a relay node on.
func (c *Client) TurnOn(ctx context.Context, d Device) error {
	c.log.Info().Str("device", d.Name()).Msg("turning relay on")
	_, err := c.t.SendCommand(ctx, CmdControlDevice, []int{d.Index, 0, d.Subindex})
	return err
}

// TurnOff switches a relay node off.
func (c *Client) TurnOff(ctx context.Context, d Device) error {
	c.log.Info().Str("device", d.Name()).Msg("turning relay off")
	_, err := c.t.SendCommand(ctx, CmdControlDevice, []int{d.Index, 1, d.Subindex})
	return err
}

// HistoryPage issues a single history request for records
// start..start+count-1 and returns the decoded entries together with
// the panel's total record count from the pagination header.
func (c *Client) HistoryPage(ctx context.Context, start, count int) ([]HistoryEntry, int, error) {
	fields, err := c.t.SendCommand(ctx, CmdGetHistory, []int{start, start + count - 1})
	if err != nil {
		return nil, 0, err
	}
	if fields == nil {
		return nil, 0, fmt.Errorf("%w: empty history reply", ErrDevice)
	}
	info, rest, err := protocol.DecodePageInfo(fields)
	if err != nil {
		return nil, 0, err
	}
	entries := make([]HistoryEntry, 0, len(rest))
	for i, raw := range rest {
		var e HistoryEntry
		if err := protocol.UnmarshalRecord(raw, &e); err != nil {
			c.log.Warn().Err(err).Int("index", info.Start+i).
				Msg("skipping undecodable history record")
			continue
		}
		e.Index = info.Start + i
		entries = append(entries, e)
	}
	return entries, info.Total, nil
}

// History retrieves history records start..end (1-based, inclusive);
// end 0 fetches through the most recent total. Records come newest
// first.
func (c *Client) History(ctx context.Context, start, end int) ([]HistoryEntry, error) {
	records, err := c.t.FetchPaginated(ctx, CmdGetHistory, start, end)
	if err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		var e HistoryEntry
		if err := protocol.UnmarshalRecord(rec.Fields, &e); err != nil {
			c.log.Warn().Err(err).Int("index", rec.Index).
				Msg("skipping undecodable history record")
			continue
		}
		e.Index = rec.Index
		entries = append(entries, e)
	}
	return entries, nil
}
