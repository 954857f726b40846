// Package async provides a minimal typed future for bridging callback-driven
// completion into blocking call sites.
//
// A Future[T] is resolved or rejected exactly once and can be awaited any
// number of times:
//
//	fut := async.NewFuture[int]()
//
//	go func() {
//		n, err := compute()
//		if err != nil {
//			fut.Reject(err)
//			return
//		}
//		fut.Resolve(n)
//	}()
//
//	n, err := fut.Await(ctx)
//
// Go runs a function on a new goroutine and returns its future:
//
//	fut := async.Go(ctx, func(ctx context.Context) (string, error) {
//		return fetch(ctx)
//	})
//	s, err := fut.AwaitWithTimeout(5 * time.Second)
package async
