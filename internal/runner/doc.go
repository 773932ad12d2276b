// Package runner schedules virtual users (VUs) for canaryload.
//
// A run starts a fixed number of VUs. Each VU repeatedly executes the
// configured [Iteration] until the run ends:
//   - Duration elapses (or the load pattern plan finishes)
//   - The shared iteration budget is exhausted
//   - The parent context is cancelled
//
// # Basic Usage
//
//	r := runner.New(runner.Options{
//		VUs:       1,
//		Duration:  30 * time.Minute,
//		Iteration: scenario,
//	})
//	result := r.Run(ctx)
//
// # Closed and Open Models
//
// Without IterationRate or LoadPatterns the runner is closed-model: each VU
// starts its next iteration as soon as the previous one returns. Setting a
// rate switches to an open model where iteration starts are paced by an
// arrival controller ([ArrivalModelUniform] or [ArrivalModelPoisson]).
//
// # Graceful Stop
//
// When the run ends, in-flight iterations get GracefulStop to finish before
// their context is cancelled. Iterations should sleep via [Sleep], which
// returns early once the run is stopping.
//
// Use [VUFromContext] and [IterationFromContext] inside an iteration to
// label logs, spans and requests.
package runner
