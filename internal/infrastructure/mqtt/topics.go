package mqtt

import (
	"strings"

	"github.com/nerrad567/doorgate/internal/infrastructure/config"
)

// Default topic names shared with the door controller firmware.
const (
	DefaultCommandsTopic = "/topic/commands"
	DefaultDatabaseTopic = "/topic/database"
	DefaultFirmwareTopic = "/topic/firmware"
	DefaultLogsTopic     = "/topic/logs"
	DefaultStatusTopic   = "/topic/status"
)

// Topics provides the topic names used on the bus. Empty configured names
// fall back to the defaults.
//
//	topics := mqtt.Topics{Config: cfg.MQTT.Topics}
//	topics.Logs()                 // "/topic/logs"
//	topics.Status("door-gateway") // "/topic/status/door-gateway"
type Topics struct {
	Config config.MQTTTopicsConfig
}

func pick(configured, fallback string) string {
	if configured == "" {
		return fallback
	}
	return configured
}

// Commands is the topic controllers read command files from.
func (t Topics) Commands() string {
	return pick(t.Config.Commands, DefaultCommandsTopic)
}

// Database is the retained topic holding the latest access database.
func (t Topics) Database() string {
	return pick(t.Config.Database, DefaultDatabaseTopic)
}

// Firmware is the topic firmware images are published to.
func (t Topics) Firmware() string {
	return pick(t.Config.Firmware, DefaultFirmwareTopic)
}

// Logs is the aggregated controller log topic.
func (t Topics) Logs() string {
	return pick(t.Config.Logs, DefaultLogsTopic)
}

// Status returns the retained online/offline topic for one client.
//
// Example: /topic/status/doorgate-server
func (t Topics) Status(clientID string) string {
	return strings.TrimRight(pick(t.Config.Status, DefaultStatusTopic), "/") + "/" + clientID
}
