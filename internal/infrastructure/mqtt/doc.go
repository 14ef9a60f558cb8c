// Package mqtt provides MQTT client connectivity for doorgate.
//
// This package manages:
//   - Connection to the broker with auto-reconnect and a persistent session
//   - TLS from CA, certificate and key files
//   - Message publishing with QoS and retain
//   - Subscriptions restored on reconnect
//   - Last Will and Testament (LWT) on /topic/status/<client_id>
//
// # Architecture
//
// Door controllers and the gateway only talk through the broker:
//
//	controllers ↔ broker ↔ doorgate (log ingest, file publishing)
//
// # Topics
//
//	/topic/commands   command files for controllers (QoS 0)
//	/topic/database   access database snapshot (QoS 2, retained)
//	/topic/firmware   firmware images (QoS 0)
//	/topic/logs       controller log lines (QoS 1)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.SubscribeOnConnect(client.Topics().Logs(), 1, processor.HandleMessage)
package mqtt
