// Package telemetry publishes decoded panel events to an MQTT broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/panelguard-project/panelguard/internal/config"
	"github.com/panelguard-project/panelguard/internal/events"
	"github.com/panelguard-project/panelguard/internal/util"
)

// MQTT topics
const (
	TopicPanelStatus = "panel/status"
	TopicPanelAlarm  = "panel/alarm"
	TopicPanelSensor = "panel/sensor"
	TopicPanelAdmin  = "panel/admin"
)

// MQTTHandler manages the MQTT connection and publishes panel events.
type MQTTHandler struct {
	mu sync.Mutex

	cfg      *config.Config
	eventBus *events.EventBus
	client   mqtt.Client

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates a new MQTT telemetry handler.
func NewMQTTHandler(cfg *config.Config, eventBus *events.EventBus) (*MQTTHandler, error) {
	mqttCfg := cfg.MQTT

	if !mqttCfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	sysInfo := util.GetSystemInfo()
	metadata := map[string]interface{}{
		"hostname":   sysInfo.Hostname,
		"os":         sysInfo.OS,
		"panel_host": cfg.GetPanel().Host,
	}
	if ip, err := util.GetLocalIP(); err == nil {
		metadata["local_ip"] = ip
	}

	handler := &MQTTHandler{
		cfg:      cfg,
		eventBus: eventBus,
		metadata: metadata,
	}

	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if mqttCfg.UseTLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, mqttCfg.BrokerURL, mqttCfg.Port))

	if mqttCfg.ClientID != "" {
		opts.SetClientID(mqttCfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("panelguard-%s", sysInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)

	if mqttCfg.UseTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}

		// mTLS: load client certificate
		if mqttCfg.CertFile != "" && mqttCfg.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(mqttCfg.CertFile, mqttCfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}

		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("MQTT connected")
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	handler.client = mqtt.NewClient(opts)

	return handler, nil
}

// Start connects to the MQTT broker and subscribes to events.
func (h *MQTTHandler) Start(ctx context.Context) error {
	log.Info().
		Str("broker", h.cfg.MQTT.BrokerURL).
		Int("port", h.cfg.MQTT.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.subscribeEvents()

	// Block until context cancelled
	<-ctx.Done()

	h.PublishShutdown()
	h.client.Disconnect(5000)
	log.Info().Msg("MQTT disconnected")

	return nil
}

// subscribeEvents registers event handlers for MQTT publishing.
func (h *MQTTHandler) subscribeEvents() {
	h.eventBus.Subscribe(events.EventArmDisarm, "mqtt.armDisarm", h.onStatus)
	h.eventBus.Subscribe(events.EventStateChange, "mqtt.stateChange", h.onStatus)
	h.eventBus.Subscribe(events.EventRemoteButton, "mqtt.remoteButton", h.onStatus)
	h.eventBus.Subscribe(events.EventAlarm, "mqtt.alarm", h.onAlarm)
	h.eventBus.Subscribe(events.EventSOS, "mqtt.sos", h.onAlarm)
	h.eventBus.Subscribe(events.EventSensorActivity, "mqtt.sensorActivity", h.onSensor)
	h.eventBus.Subscribe(events.EventSensorChange, "mqtt.sensorChange", h.onSensor)
	h.eventBus.Subscribe(events.EventDoorOpenClose, "mqtt.doorOpenClose", h.onSensor)
	h.eventBus.Subscribe(events.EventDoorOpenWhenArming, "mqtt.doorOpenWhenArming", h.onSensor)
	h.eventBus.Subscribe(events.EventLowBattery, "mqtt.lowBattery", h.onSensor)
}

// publish sends a JSON message to an MQTT topic.
func (h *MQTTHandler) publish(topic string, payload interface{}) {
	if !h.client.IsConnected() {
		return
	}

	msg := h.buildMessage(payload)

	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := h.client.Publish(topic, 1, false, data) // QoS 1
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event payload.
func (h *MQTTHandler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{})

	for k, v := range h.metadata {
		msg[k] = v
	}

	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	return msg
}

func (h *MQTTHandler) onStatus(ctx context.Context, event events.Event) error {
	h.publish(TopicPanelStatus, map[string]interface{}{
		"event":   string(event.Type),
		"origin":  event.Source,
		"payload": event.Payload,
	})
	return nil
}

func (h *MQTTHandler) onAlarm(ctx context.Context, event events.Event) error {
	h.publish(TopicPanelAlarm, map[string]interface{}{
		"event":   string(event.Type),
		"origin":  event.Source,
		"payload": event.Payload,
	})
	return nil
}

func (h *MQTTHandler) onSensor(ctx context.Context, event events.Event) error {
	h.publish(TopicPanelSensor, map[string]interface{}{
		"event":   string(event.Type),
		"origin":  event.Source,
		"payload": event.Payload,
	})
	return nil
}

// PublishShutdown sends a shutdown message to the MQTT broker.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(TopicPanelAdmin, map[string]interface{}{
		"event":     "shutdown",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
