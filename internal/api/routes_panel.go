package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/panelguard-project/panelguard/internal/local"
)

// handleGetStatus returns the panel arming state and identification.
func (s *Server) handleGetStatus(c *gin.Context) {
	status, err := s.panel.HostStatus(c.Request.Context())
	if err != nil {
		s.panelError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"arm_state":    status.ArmState(),
		"phone_number": status.HostPhoneNumber,
		"product":      status.ProductName,
		"mcu_version":  status.MCUHardwareVersion,
		"wifi_version": status.WifiHardwareVersion,
	})
}

// handleGetInfo returns device identification and module status.
func (s *Server) handleGetInfo(c *gin.Context) {
	info, err := s.panel.HostInfo(c.Request.Context())
	if err != nil {
		s.panelError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"guid":              info.GUID,
		"product":           info.ProductName,
		"wifi_protocol":     info.WifiProtocolVersion,
		"cloud_protocol":    info.CloudProtocolVersion,
		"mcu_version":       info.MCUHardwareVersion,
		"wifi_version":      info.WifiHardwareVersion,
		"gsm_status":        info.GSMStatus().String(),
		"wifi_status":       info.WifiStatus().String(),
		"band_frequency":    info.BandFrequency,
		"gsm_signal_level":  info.GSMSignalLevel,
		"wifi_signal_level": info.WifiSignalLevel,
	})
}

// handleGetSensors returns the sensor inventory.
func (s *Server) handleGetSensors(c *gin.Context) {
	sensors, err := s.panel.Sensors(c.Request.Context())
	if err != nil {
		s.panelError(c, err)
		return
	}

	out := make([]gin.H, 0, len(sensors))
	for _, sensor := range sensors {
		out = append(out, gin.H{
			"index":   sensor.Index,
			"name":    sensor.ParentName,
			"type_id": sensor.TypeID,
			"subtype": sensor.Subtype,
			"room_id": sensor.RoomID,
			"enabled": sensor.Enabled(),
			"flags":   sensor.UserFlagData,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"sensors": out,
		"total":   len(out),
	})
}

// handleGetDevices returns the controllable relay inventory, one entry per
// relay node.
func (s *Server) handleGetDevices(c *gin.Context) {
	devices, err := s.panel.Devices(c.Request.Context())
	if err != nil {
		s.panelError(c, err)
		return
	}

	out := make([]gin.H, 0, len(devices))
	for _, d := range devices {
		out = append(out, gin.H{
			"index":    d.Index,
			"subindex": d.Subindex,
			"name":     d.Name(),
			"nodes":    d.NodeCount,
			"type_id":  d.TypeID,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"devices": out,
		"total":   len(out),
	})
}

// handleGetHistory returns panel history records, most recent first.
func (s *Server) handleGetHistory(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "50"))
	if err != nil || count < 1 {
		count = 50
	}
	if count > 500 {
		count = 500
	}

	entries, err := s.panel.History(c.Request.Context(), 1, count)
	if err != nil {
		s.panelError(c, err)
		return
	}

	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		out = append(out, gin.H{
			"sensor_name": e.SensorName,
			"state":       e.State().String(),
			"time":        e.Time(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": out,
		"count":   len(out),
	})
}

func (s *Server) handleArmAway(c *gin.Context) {
	if err := s.panel.ArmAway(c.Request.Context()); err != nil {
		s.panelError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "armed_away"})
}

func (s *Server) handleArmHome(c *gin.Context) {
	if err := s.panel.ArmHome(c.Request.Context()); err != nil {
		s.panelError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "armed_home"})
}

func (s *Server) handleDisarm(c *gin.Context) {
	if err := s.panel.Disarm(c.Request.Context()); err != nil {
		s.panelError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "disarmed"})
}

// handleDeviceOn switches a relay node on. The device is looked up in the
// panel's current device list so extra wire fields travel with the command.
func (s *Server) handleDeviceOn(c *gin.Context) {
	s.controlDevice(c, s.panel.TurnOn, "on")
}

// handleDeviceOff switches a relay node off.
func (s *Server) handleDeviceOff(c *gin.Context) {
	s.controlDevice(c, s.panel.TurnOff, "off")
}

func (s *Server) controlDevice(c *gin.Context, action func(ctx context.Context, d local.Device) error, result string) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid device index"})
		return
	}

	subindex := 0
	if raw := c.Query("subindex"); raw != "" {
		subindex, err = strconv.Atoi(raw)
		if err != nil || subindex < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subindex"})
			return
		}
	}

	devices, err := s.panel.Devices(c.Request.Context())
	if err != nil {
		s.panelError(c, err)
		return
	}

	for _, d := range devices {
		if d.Index == index && d.Subindex == subindex {
			if err := action(c.Request.Context(), d); err != nil {
				s.panelError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"result": result,
				"device": d.Name(),
			})
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{
		"error":    "device not found",
		"index":    index,
		"subindex": subindex,
	})
}

// panelError maps transport errors to HTTP status codes.
func (s *Server) panelError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, local.ErrCommandTimeout) {
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
