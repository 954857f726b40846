// Package command provides a state-machine driven command processing engine
// with filter-gated admission, response routing, and ordered execution
// chains. Commands move through an explicit lifecycle (New, Pending,
// Executing, Blocked, and the terminal Succeeded, Failed, Canceled states),
// and a Processor decides when each pending command may start by running it
// through a shared filter chain.
//
// # Features
//
//   - Explicit command state machine with a full transition trace
//   - Pluggable filter chain with race-safe re-evaluation on mutation
//   - Per-command options: timeouts, grouping, ordering, lifecycle hooks
//   - Repeating (forever) commands that re-arm after each success
//   - Blocked commands that can be re-run on demand
//   - Ordered publication: a batch executes strictly in sequence
//   - Response routing: external inputs are offered to executing commands
//   - Replaying completion streams, safe to subscribe after the fact
//   - Typed commands carrying a result value via async futures
//   - OpenTelemetry metrics and structured slog logging
//
// # Basic Usage
//
// Define a behavior, wrap it in a command, and publish it:
//
//	import "github.com/cmdkit/cmdkit/core/command"
//
//	inputs := make(chan any)
//	proc := command.NewProcessor(inputs, nil)
//	defer proc.Stop()
//
//	cmd := command.New(command.Funcs{
//		ExecuteFunc: func(cmd *command.Command) error {
//			return device.Send("reset")
//		},
//	})
//
//	if err := proc.Publish(cmd); err != nil {
//		return err
//	}
//	if err := cmd.Await(ctx); err != nil {
//		log.Printf("command failed: %v", err)
//	}
//
// # Filters
//
// Filters gate admission. A command only starts executing once every filter
// in the chain lets it pass; otherwise it stays pending and is retried each
// time the chain changes or another command completes:
//
//	proc.Filters().Add(command.NewFilterFunc(0, func(cmd *command.Command) (bool, error) {
//		return device.Connected(), nil
//	}))
//
// Filters are consulted in ascending Order. A filter returning an error
// aborts the pass; whether that fails the command depends on the command's
// WithFailIfFiltered option.
//
// # Response Routing
//
// Commands that expect a device or peer response implement
// InterpretResponse. Every value received on the processor's input channel
// is offered to outstanding commands in publication order; the first command
// that claims the input succeeds, and commands whose interpreter errors
// fail:
//
//	cmd := command.New(command.Funcs{
//		ExecuteFunc: func(cmd *command.Command) error { return device.Send("status?") },
//		InterpretResponseFunc: func(cmd *command.Command, input any) (bool, error) {
//			s, ok := input.(string)
//			if !ok {
//				return false, nil
//			}
//			return strings.HasPrefix(s, "status:"), nil
//		},
//	})
//
// # Ordered Publication
//
// PublishOrdered publishes a batch that executes strictly one after another,
// regardless of interleaved unrelated commands:
//
//	err := proc.PublishOrdered(connect, authenticate, subscribe)
//
// # Typed Commands
//
// Typed commands carry a result value collected per fulfillment:
//
//	cmd := command.NewTyped[int](behavior)
//	fut, err := command.PublishTyped(proc, cmd)
//	if err != nil {
//		return err
//	}
//	values, err := fut.Await(ctx)
//
// # Concurrency
//
// All Processor, Command, and FilterManager methods are safe for concurrent
// use. Completion observers and lifecycle hooks are invoked sequentially per
// command, never concurrently with each other.
package command
