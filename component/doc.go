// Package component defines the contract shared by the relay's long-lived
// parts, the collector and the WebSocket relay server.
//
// Every component follows the same pattern:
//
//	c, err := collector.New(deps)
//	if err := c.Initialize(); err != nil { ... } // validate, no goroutines
//	if err := c.Start(ctx); err != nil { ... }   // spawn goroutines
//	defer c.Stop(5 * time.Second)                // bounded shutdown
//
// StartAll and StopAll apply the pattern to an ordered list, stopping in
// reverse order so consumers of the cache go away before its producer.
//
// Discoverable exposes Meta, Health and DataFlow so the health endpoint can
// report on a component without knowing its concrete type.
package component
