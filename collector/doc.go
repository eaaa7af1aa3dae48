// Package collector runs the single loop that keeps the snapshot cache
// current.
//
// The Collector subscribes to a fixed set of bus channels, waits for
// updates with a bounded poll timeout, decodes and converts every updated
// channel and ingests the results into a snapshot.Cache. Channels that the
// bus catalog does not know are dropped once, when the collector is built.
// A payload that fails to decode is logged and skipped; the channel keeps
// its previous cached value and the other channels of the same poll are
// unaffected.
//
// The collector implements component.LifecycleComponent:
//
//	c, err := collector.New(collector.Deps{
//	    Config:  collector.Config{Channels: channels, PollTimeout: 100 * time.Millisecond},
//	    Bus:     natsBus,
//	    Catalog: bus.DefaultCatalog(),
//	    Cache:   cache,
//	    Logger:  logger,
//	})
//	if err := c.Initialize(); err != nil { ... }
//	if err := c.Start(ctx); err != nil { ... }
//	defer c.Stop(5 * time.Second)
package collector
