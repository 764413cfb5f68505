// Package scenario issues the tagged digest API requests that make up one
// iteration and turns each response into a metrics.Observation.
//
// An iteration runs its steps in order. Every step is attempted even when
// an earlier one failed, and nothing is retried:
//
//	steps, err := scenario.DigestSteps(cfg, provider, propagate)
//	sc, err := scenario.New(scenario.Options{
//		Steps:    steps,
//		Client:   client,
//		Recorder: collector,
//		Logger:   log,
//	})
//	runner.New(runner.Options{Iteration: sc, ...})
//
// A step succeeds only on status 200. Its latency runs from just before the
// request is sent until the response body has been fully read.
package scenario
