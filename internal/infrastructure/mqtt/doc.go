// Package mqtt provides MQTT 3.1.1 broker connectivity for imagepub.
//
// This package manages:
//   - Connection with a bounded number of initial attempts
//   - Automatic reconnection with the same attempt budget
//   - Fire-and-forget publishing with asynchronous failure callbacks
//   - TLS for tcps/ssl/tls/mqtts hosts
//
// # Message Envelope
//
// MQTT 3.1.1 has no per-message properties, so the message ID and
// properties travel with the body in a JSON Envelope:
//
//	{"id":"image-cat.png","properties":{"filename":"cat.png","content-type":"image/png","encoding":"base64"},"body":"..."}
//
// Brokers that speak MQTT 5 should use the mqtt5 package instead, which
// carries the same fields as native message properties.
//
// # Connection Events
//
//   - SetOnReconnecting: before every reconnect attempt
//   - SetOnReconnected: when a dropped connection is restored
//   - SetOnInterrupted: when the reconnect budget is spent
//
// # Usage
//
//	client, err := mqtt.NewClient(cfg)
//	if err != nil {
//	    return err
//	}
//	client.SetOnPublishFailed(func(topic, id string, err error) { ... })
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Publish("solace/images/cat.png", mqtt.Envelope{ID: "image-cat.png", Body: data})
//	_ = client.Drain(ctx)
package mqtt
