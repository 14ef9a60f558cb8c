package mqtt

import (
	"fmt"
)

// maxPayloadSize is the largest payload the MQTT protocol can carry.
// Database and firmware files are sent whole, so no smaller cap applies.
const maxPayloadSize = 268435455

// Publish sends a message to the specified MQTT topic.
//
// QoS Levels:
//   - 0: At most once (command files, firmware)
//   - 1: At least once (log spool uploads)
//   - 2: Exactly once (access database snapshot)
//
// Retained messages are stored by the broker and delivered to every new
// subscriber. Only the database snapshot and status topics use them.
//
// Publish fails fast with ErrNotConnected while the broker is unreachable.
//
// Example:
//
//	err := client.Publish(client.Topics().Database(), data, 2, true)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
