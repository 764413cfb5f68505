// Package runner provides the constant-arrival-rate executor that drives
// scenario iterations.
//
// New iterations are started at a fixed rate regardless of how long each
// iteration takes, up to a bound on concurrent worker slots:
//
//	opts := runner.Options{
//		Rate:            1,
//		TimeUnit:        time.Second,
//		Duration:        time.Minute,
//		PreAllocatedVUs: 10,
//		MaxVUs:          10,
//		GracefulStop:    2 * time.Second,
//		Iteration:       myScenario,
//	}
//	result := runner.New(opts).Run(ctx)
//
// # Worker slots
//
// PreAllocatedVUs slots are started up front. When an iteration is due and
// every slot is busy, a new slot is started as long as fewer than MaxVUs
// exist; otherwise the iteration is dropped and counted in
// [Result.Dropped].
//
// # Stopping
//
// After Duration no new iterations are started. In-flight iterations get
// GracefulStop to finish, after which their context is cancelled and they
// are counted as interrupted.
//
// # Arrival models
//
//   - [ArrivalModelUniform]: starts at fixed intervals (rate.Limiter, burst 1)
//   - [ArrivalModelPoisson]: exponentially distributed gaps with the same mean rate
package runner
