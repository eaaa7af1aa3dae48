// Package config loads the relay configuration.
//
// Configuration is read once at startup, in three steps:
//
//  1. Defaults (Default)
//  2. File layers, YAML or JSON, each checked against an embedded JSON
//     schema and decoded over the previous result. Keys absent from a file
//     keep their earlier values.
//  3. Environment overrides
//
// Basic usage:
//
//	loader := config.NewLoader()
//	loader.AddLayer("/etc/streamrelay/relay.yaml")
//	cfg, err := loader.Load()
//	if err != nil {
//		return err
//	}
//
// Example file:
//
//	bus:
//	  url: nats://10.0.0.5:4222
//	  subject_prefix: bus
//	  poll_timeout: 100ms
//	listen:
//	  host: 0.0.0.0
//	  port: 8867
//	  path: /
//	relay:
//	  send_interval: 50ms
//	channels: [carState, radarState, modelV2]
//
// # Environment
//
//	DEVICE_ADDR                  bus host, host:port or URL (bare host -> nats://host:4222)
//	STREAMRELAY_BUS_URL          bus URL, wins over DEVICE_ADDR
//	STREAMRELAY_SUBJECT_PREFIX   subject prefix for channel subjects
//	STREAMRELAY_POLL_TIMEOUT     collector poll timeout (Go duration)
//	STREAMRELAY_CATALOG          service catalog file replacing the embedded one
//	WS_HOST, WS_PORT             listener address
//	STREAMRELAY_WS_PATH          WebSocket path
//	STREAMRELAY_SEND_INTERVAL    delivery cadence (Go duration)
//	STREAMRELAY_CHANNELS         comma separated channel list
//
// Load finishes with Config.Validate unless validation is disabled. All
// configuration errors are classified invalid (errors.IsInvalid) and wrap
// errors.ErrInvalidConfig.
package config
