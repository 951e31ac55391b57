// Package mqtt connects HomeState Core to the MQTT broker that device
// firmware talks to.
//
// The Client wraps paho.mqtt.golang with:
//   - retrying connect and automatic reconnect with backoff
//   - subscriptions that are restored after every reconnect
//   - handler panic recovery with optional logging
//   - a retained presence message on homestate/system/status, with a
//     Last Will so the broker marks the core offline if it dies
//
// Topics holds the topic tree. Device readings arrive on
// homestate/report/{deviceId}; the core publishes retained snapshots on
// homestate/state/{deviceId}. The devicelink package implements both
// directions on top of this client.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceReports(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(topic, payload)
//	    })
package mqtt
