// Package master drives several co-simulation components through a
// fixed-step communication loop.
//
// Components exchange values only at communication points. Every relay uses
// the value its source held at the end of the previous step (zero-order
// hold), so feedback loops need no simultaneous solve. Components are
// stepped one at a time in a fixed order; there is no background execution.
//
// Example:
//
//	sched, err := master.New(members, edges, master.Options{
//		Start: 0, Stop: 10, Step: 0.1,
//		Attack: atk,
//	})
//	if err != nil {
//		return err
//	}
//	log, err := sched.Run(ctx)
package master
