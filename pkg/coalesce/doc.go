// Package coalesce implements the state coalescer at the heart of the bridge.
//
// The Coalescer owns the authoritative local state snapshot. Callers mutate
// it with partial updates and a completion callback; successive mutations
// within one quiet period are merged into a single snapshot and published
// once, and every contributing caller is resolved with the same outcome:
//
//	c := coalesce.New(gateway)
//	c.Mutate(map[string]any{"On": true}, func(err error) { ... })
//	c.Mutate(map[string]any{"Brightness": 80}, func(err error) { ... })
//	// one publish of {"On": true, "Brightness": 80}; both callbacks
//	// resolve with the publish outcome, in registration order
//
// # Quiet period
//
// The first mutation after an idle stretch arms a single-shot timer; every
// further mutation restarts it. Only the timer firing triggers a flush, and
// a flush never rearms the timer itself. At most one timer exists at any
// moment.
//
// # Overlap policy
//
// The pending callback queue is swapped out atomically before the publisher
// is invoked. A mutation that races with an in-flight publish lands in the
// next batch: it is never mixed into the in-flight flush's callback set, so
// no callback can be dropped or resolved twice.
package coalesce
