// Package bus connects the relay to the publish/subscribe bus that carries
// vehicle and model channels.
//
// Channel X travels on the NATS subject "<prefix>.X". Each message carries
// its metadata in headers:
//
//	Log-Mono-Time  decimal publisher monotonic time (receive time if absent)
//	Valid          "true" or "false", default true
//	Content-Type   application/json (default), application/cbor, application/msgpack
//
// A Subscription keeps only the latest message per channel. Update blocks
// until at least one channel has received a message or the timeout passes,
// then freezes those messages so that Read returns a stable value until the
// next Update:
//
//	sub, err := b.Subscribe(ctx, []string{"carState", "radarState"})
//	for {
//	    updated, err := sub.Update(ctx, 100*time.Millisecond)
//	    for name, ok := range updated {
//	        if ok {
//	            msg, _ := sub.Read(name)
//	            ...
//	        }
//	    }
//	}
//
// The Catalog lists the channels that exist on the bus together with their
// legacy port and nominal frequency.
package bus
