// Package mqtt5 provides MQTT v5 broker connectivity for imagepub using
// the paho.golang autopaho connection manager.
//
// Message metadata travels as native MQTT v5 properties: the content
// type in the Content Type property, and filename, content-type,
// encoding and message-id as user properties. The body is the raw
// base64 text.
//
// # Connection Budget
//
// autopaho retries forever. This client counts failed attempts and stops
// the manager once retry.max_retries is spent, both for the initial
// connection (Connect returns ErrConnectionFailed) and for each
// reconnect cycle (the OnInterrupted callback fires).
//
// # Usage
//
//	client, err := mqtt5.NewClient(cfg)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Disconnect(context.Background())
//
//	err = client.Publish(ctx, mqtt5.Message{Topic: "solace/images/cat.png", Body: data})
package mqtt5
