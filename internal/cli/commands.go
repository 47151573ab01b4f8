// Package cli implements the interactive command-line interface for
// PanelGuard: panel status, arming control, and sensor/device/history tables.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/panelguard-project/panelguard/internal/config"
	"github.com/panelguard-project/panelguard/internal/db"
	"github.com/panelguard-project/panelguard/internal/events"
	"github.com/panelguard-project/panelguard/internal/local"
)

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	panel    *local.Client
	journal  *db.Journal
}

// NewCLI creates a new CLI handler.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, panel *local.Client, journal *db.Journal) *CLI {
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		panel:    panel,
		journal:  journal,
	}
}

// Start begins the interactive CLI loop.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nPanelGuard CLI ready. Type 'help' for available commands.")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Print("panelguard> ")
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}

			line = strings.TrimSpace(line)
			if line == "" {
				fmt.Print("panelguard> ")
				continue
			}

			parts := strings.Fields(line)
			cmd := strings.ToLower(parts[0])
			args := parts[1:]

			if err := c.execute(ctx, cmd, args); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
			fmt.Print("panelguard> ")
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "?":
		c.printHelp()
	case "status":
		return c.cmdStatus(ctx)
	case "info":
		return c.cmdInfo(ctx)
	case "arm":
		return c.cmdArm(ctx, args)
	case "disarm":
		if err := c.panel.Disarm(ctx); err != nil {
			return err
		}
		fmt.Println("Panel disarmed")
	case "sensors":
		return c.cmdSensors(ctx)
	case "devices":
		return c.cmdDevices(ctx)
	case "on":
		return c.cmdSwitch(ctx, args, true)
	case "off":
		return c.cmdSwitch(ctx, args, false)
	case "history":
		return c.cmdHistory(ctx, args)
	case "events":
		return c.cmdEvents(args)
	case "setconfig":
		return c.cmdSetConfig(ctx, args)
	case "quit", "exit", "q":
		fmt.Println("Shutting down PanelGuard...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Println()
	fmt.Println("  status               Show panel arming state")
	fmt.Println("  info                 Show panel hardware and signal info")
	fmt.Println("  arm <away|home>      Arm the panel")
	fmt.Println("  disarm               Disarm the panel")
	fmt.Println("  sensors              List sensors")
	fmt.Println("  devices              List controllable relays")
	fmt.Println("  on <index> [sub]     Switch a relay on")
	fmt.Println("  off <index> [sub]    Switch a relay off")
	fmt.Println("  history [count]      Show panel history (default 20)")
	fmt.Println("  events [count]       Show journaled events (default 20)")
	fmt.Println("  setconfig <k> <v>    Update a panel configuration value")
	fmt.Println("  quit                 Shutdown PanelGuard")
	fmt.Println("  help                 Show this help message")
	fmt.Println()
}

func (c *CLI) cmdStatus(ctx context.Context) error {
	status, err := c.panel.HostStatus(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n  Product:      %s\n", status.ProductName)
	fmt.Printf("  Arm state:    %s\n", status.ArmState())
	fmt.Printf("  Phone:        %s\n", status.HostPhoneNumber)
	fmt.Printf("  MCU version:  %s\n", status.MCUHardwareVersion)
	fmt.Printf("  Wifi version: %s\n\n", status.WifiHardwareVersion)
	return nil
}

func (c *CLI) cmdInfo(ctx context.Context) error {
	info, err := c.panel.HostInfo(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n  GUID:          %s\n", info.GUID)
	fmt.Printf("  Product:       %s\n", info.ProductName)
	fmt.Printf("  GSM status:    %s (signal %d)\n", info.GSMStatus(), info.GSMSignalLevel)
	fmt.Printf("  Wifi status:   %s (signal %d)\n", info.WifiStatus(), info.WifiSignalLevel)
	fmt.Printf("  Band:          %s\n", info.BandFrequency)
	fmt.Printf("  Wifi protocol: %s\n", info.WifiProtocolVersion)
	fmt.Printf("  Cloud protocol: %s\n\n", info.CloudProtocolVersion)
	return nil
}

func (c *CLI) cmdArm(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: arm <away|home>")
	}

	switch strings.ToLower(args[0]) {
	case "away":
		if err := c.panel.ArmAway(ctx); err != nil {
			return err
		}
		fmt.Println("Panel armed (away)")
	case "home":
		if err := c.panel.ArmHome(ctx); err != nil {
			return err
		}
		fmt.Println("Panel armed (home)")
	default:
		return fmt.Errorf("unknown arm mode: %s", args[0])
	}
	return nil
}

func (c *CLI) cmdSensors(ctx context.Context) error {
	sensors, err := c.panel.Sensors(ctx)
	if err != nil {
		return err
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Index", "Name", "Type", "Room", "Enabled"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, sensor := range sensors {
		enabled := "no"
		if sensor.Enabled() {
			enabled = "yes"
		}
		tw.Append([]string{
			strconv.Itoa(sensor.Index),
			sensor.ParentName,
			strconv.Itoa(sensor.TypeID),
			strconv.Itoa(sensor.RoomID),
			enabled,
		})
	}

	tw.Render()
	fmt.Println()
	return nil
}

func (c *CLI) cmdDevices(ctx context.Context) error {
	devices, err := c.panel.Devices(ctx)
	if err != nil {
		return err
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Index", "Sub", "Name", "Nodes"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, d := range devices {
		tw.Append([]string{
			strconv.Itoa(d.Index),
			strconv.Itoa(d.Subindex),
			d.Name(),
			strconv.Itoa(d.NodeCount),
		})
	}

	tw.Render()
	fmt.Println()
	return nil
}

func (c *CLI) cmdSwitch(ctx context.Context, args []string, on bool) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <index> [subindex]", switchName(on))
	}

	index, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid device index: %s", args[0])
	}

	subindex := 0
	if len(args) > 1 {
		subindex, err = strconv.Atoi(args[1])
		if err != nil || subindex < 0 {
			return fmt.Errorf("invalid subindex: %s", args[1])
		}
	}

	devices, err := c.panel.Devices(ctx)
	if err != nil {
		return err
	}

	for _, d := range devices {
		if d.Index == index && d.Subindex == subindex {
			action := c.panel.TurnOff
			if on {
				action = c.panel.TurnOn
			}
			if err := action(ctx, d); err != nil {
				return err
			}
			fmt.Printf("Device %s switched %s\n", d.Name(), switchName(on))
			return nil
		}
	}
	return fmt.Errorf("device not found: index %d subindex %d", index, subindex)
}

func switchName(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func (c *CLI) cmdHistory(ctx context.Context, args []string) error {
	count := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		count = n
	}

	entries, err := c.panel.History(ctx, 1, count)
	if err != nil {
		return err
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Time", "Sensor", "State"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, e := range entries {
		tw.Append([]string{
			e.Time().Format("2006-01-02 15:04:05"),
			e.SensorName,
			e.State().String(),
		})
	}

	tw.Render()
	fmt.Println()
	return nil
}

func (c *CLI) cmdEvents(args []string) error {
	count := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		count = n
	}

	entries, err := c.journal.Recent(count, "")
	if err != nil {
		return err
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Time", "Type", "Origin"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, e := range entries {
		tw.Append([]string{
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Type,
			e.Source,
		})
	}

	tw.Render()
	fmt.Println()
	return nil
}

func (c *CLI) cmdSetConfig(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: setconfig <key> <value>")
	}

	key := args[0]
	value := strings.Join(args[1:], " ")

	if err := c.cfg.UpdatePanelField(key, value); err != nil {
		return err
	}

	if err := c.cfg.Save(); err != nil {
		return err
	}

	c.eventBus.Emit(ctx, events.Event{
		Type:   events.EventConfigChanged,
		Source: "cli",
		Payload: events.ConfigChangedPayload{
			Key:   key,
			Value: value,
		},
	})

	log.Info().Str("key", key).Msg("config updated from CLI")
	fmt.Printf("Config updated: %s = %s\n", key, value)
	return nil
}
