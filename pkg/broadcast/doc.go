// Package broadcast provides a generic in-memory pub/sub primitive with
// non-blocking message delivery.
//
// A Broadcaster fans messages out to any number of subscribers. Delivery is
// best-effort: if a subscriber's buffer is full the message is dropped for
// that subscriber rather than blocking the broadcaster, so a slow consumer
// never stalls the producer or its peers.
//
// # Usage
//
//	broadcaster := broadcast.NewMemoryBroadcaster[string](100)
//	defer broadcaster.Close()
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//
//	subscriber := broadcaster.Subscribe(ctx)
//	defer subscriber.Close()
//
//	go func() {
//		for msg := range subscriber.Receive(ctx) {
//			fmt.Printf("received: %s\n", msg.Data)
//		}
//	}()
//
//	broadcaster.Broadcast(ctx, broadcast.Message[string]{Data: "hello"})
//
// Subscriptions are cleaned up automatically when their context is cancelled,
// and the receive channel is closed when either the subscriber or the
// broadcaster is closed. All types are safe for concurrent use.
//
// Buffer sizes should match expected message rates: 10-100 for low-volume
// streams, 100-1000 for high-volume ones.
package broadcast
