// Package mqtt connects Gray Logic Notify to an MQTT broker and turns
// entity state messages into registry fan-out.
//
// Other services publish entity state to notify/state/{entity_id}; the
// handler from NewStateHandler decodes each payload and hands it to the
// subscription registry. The client keeps a retained JSON status on
// notify/system/status, set to online after every connect and to offline by
// Close or by the broker-held will when the session drops unexpectedly.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(cfg.MQTT.StateTopic, 1, mqtt.NewStateHandler(registry, logger))
//
// Subscriptions are remembered and replayed on reconnect. Use TLS
// (broker.tls) for any broker not on the same host.
package mqtt
