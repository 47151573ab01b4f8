package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/panelguard-project/panelguard/internal/util"
)

// handlePing is a trivial liveness probe.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleGetEvents returns entries from the event journal, newest first.
func (s *Server) handleGetEvents(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "100"))
	if err != nil || count < 1 {
		count = 100
	}
	if count > 1000 {
		count = 1000
	}
	typeFilter := c.Query("type")

	entries, err := s.journal.Recent(count, typeFilter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": entries,
		"count":  len(entries),
	})
}

// handleGetEventSummary returns journal counts grouped by event type.
func (s *Server) handleGetEventSummary(c *gin.Context) {
	counts, err := s.journal.CountByType()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	total, err := s.journal.Count()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"counts": counts,
		"total":  total,
	})
}

// handleGetSystem returns host system usage for the dashboard.
func (s *Server) handleGetSystem(c *gin.Context) {
	cpu, err := util.GetCPUUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	mem, err := util.GetMemoryUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cpu_percent":    cpu,
		"memory_used_mb": mem.Used,
		"memory_percent": mem.UsedPercent,
	})
}

// handleGetRelay reports the state of the cloud relay listener.
func (s *Server) handleGetRelay(c *gin.Context) {
	relayCfg := s.cfg.CloudRelay

	out := gin.H{
		"enabled": relayCfg.Enabled,
		"chained": relayCfg.UpstreamHost != "",
	}

	if s.relay != nil {
		out["device_id"] = s.relay.DeviceID()
		if addr := s.relay.LocalAddr(); addr != nil {
			out["listen_addr"] = addr.String()
		}
	}

	c.JSON(http.StatusOK, out)
}
