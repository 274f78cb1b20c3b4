// Package mqtt connects virtfoo-core to an MQTT broker.
//
// The package has two layers:
//
//   - Client wraps paho.mqtt.golang: auto-reconnect, subscription
//     restoration, panic-safe handlers, and a retained status topic with a
//     Last Will for crash detection.
//   - DeviceBridge mirrors one device: it is a device.Observer that
//     publishes every counter mutation, and it feeds the device command
//     topic into the command register.
//
// # Topics
//
//	virtfoo/device/{id}/count   retained JSON counter state
//	virtfoo/device/{id}/event   one JSON message per mutation
//	virtfoo/device/{id}/cmd     subscribed; payload is the command text
//	virtfoo/system/status       online/offline, LWT
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	bridge := mqtt.NewDeviceBridge(client, dev.ID(), 1, logger)
//	dev.AddObserver(bridge)
//	if err := bridge.ServeCommands(client, dev); err != nil {
//	    return err
//	}
package mqtt
