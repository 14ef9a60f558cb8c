package mqtt

import (
	"fmt"
)

// Subscribe registers a handler for messages on the specified topic.
//
// Topics can include MQTT wildcards (+ and #). Subscriptions are restored
// automatically after a reconnect.
//
// Subscribe requires a live connection; use SubscribeOnConnect to register
// before the broker is reachable.
//
// Example:
//
//	err := client.Subscribe(client.Topics().Logs(), 1, processor.HandleMessage)
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := validateSubscription(topic, qos, handler); err != nil {
		return err
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.track(topic, qos, handler)

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultSubscribeTimeout) {
		c.untrack(topic)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultSubscribeTimeout)
	}
	if err := token.Error(); err != nil {
		c.untrack(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// SubscribeOnConnect records a subscription and activates it now if the
// client is connected, otherwise on the next (re)connect. Unlike Subscribe
// it never fails because the broker is down.
func (c *Client) SubscribeOnConnect(topic string, qos byte, handler MessageHandler) error {
	if err := validateSubscription(topic, qos, handler); err != nil {
		return err
	}

	c.track(topic, qos, handler)

	if c.IsConnected() {
		token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
		if token.WaitTimeout(defaultSubscribeTimeout) && token.Error() != nil {
			// Kept tracked; the next reconnect retries it.
			return fmt.Errorf("%w: %w", ErrSubscribeFailed, token.Error())
		}
	}

	return nil
}

func validateSubscription(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	return nil
}

func (c *Client) track(topic string, qos byte, handler MessageHandler) {
	c.subMu.Lock()
	c.subscriptions[topic] = subscription{
		topic:   topic,
		qos:     qos,
		handler: handler,
	}
	c.subMu.Unlock()
}

func (c *Client) untrack(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// Unsubscribe removes a subscription and stops receiving messages for a topic.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.untrack(topic)

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultSubscribeTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultSubscribeTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription checks if a subscription exists for the given topic.
//
// Note: This checks only the exact topic string, not pattern matching.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.subscriptions[topic]
	return exists
}
