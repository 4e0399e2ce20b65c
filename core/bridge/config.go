package bridge

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultTopicPrefix     = "tesla-api"
	DefaultShutdownTimeout = 30 * time.Second

	// StatusOnline and StatusOffline are the retained payloads of the
	// status topic.
	StatusOnline  = "true"
	StatusOffline = "false"
)

// Config defines the topics and delivery guarantees of the bridge.
type Config struct {
	TopicPrefix string `json:"topic_prefix"`
	// CommandQoS is the subscription QoS. Zero selects 1 so that commands
	// are queued by the broker while the bridge is offline.
	CommandQoS  byte `json:"command_qos"`
	ResponseQoS byte `json:"response_qos"`
	// ShutdownTimeout bounds how long a stop waits for running commands.
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	c.TopicPrefix = strings.Trim(c.TopicPrefix, "/")
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	if c.CommandQoS == 0 {
		c.CommandQoS = 1
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Validate checks topic and QoS values.
func (c Config) Validate() error {
	if strings.ContainsAny(c.TopicPrefix, "+#") {
		return fmt.Errorf("topic_prefix must not contain wildcards")
	}
	if c.CommandQoS > 2 || c.ResponseQoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2")
	}
	return nil
}

// CommandFilter is the subscription matching every vehicle command topic.
func (c Config) CommandFilter() string { return c.TopicPrefix + "/+/command" }

// CommandTopic is the topic commands for id are sent to.
func (c Config) CommandTopic(id string) string { return c.TopicPrefix + "/" + id + "/command" }

// StatusTopic carries the retained connection status of the bridge.
func (c Config) StatusTopic() string { return c.TopicPrefix + "/connected" }
