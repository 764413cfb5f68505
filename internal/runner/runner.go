package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Result captures execution summary.
type Result struct {
	Started     int64         `json:"iterations_started" yaml:"iterations_started"`
	Completed   int64         `json:"iterations_completed" yaml:"iterations_completed"`
	Interrupted int64         `json:"iterations_interrupted" yaml:"iterations_interrupted"`
	Dropped     int64         `json:"dropped_iterations" yaml:"dropped_iterations"`
	Errors      int64         `json:"iterations_failed" yaml:"iterations_failed"`
	PeakVUs     int           `json:"vus_max" yaml:"vus_max"`
	Duration    time.Duration `json:"-" yaml:"-"`
}

// Runner is a constant-arrival-rate executor: it starts iterations at a fixed
// rate for a fixed duration, handing each start to a free worker slot.
type Runner struct {
	opt     Options
	arrival arrivalController
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt, arrival: newArrivalController(opt)}
}

// Options returns the normalized options.
func (r *Runner) Options() Options { return r.opt }

func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()
	var (
		started, completed, interrupted, dropped, errs int64
		vus                                            int
	)

	// iterCtx is only cancelled once the graceful stop period is exhausted.
	iterCtx, cancelIterations := context.WithCancel(ctx)
	defer cancelIterations()

	schedCtx, cancelSchedule := context.WithCancel(ctx)
	defer cancelSchedule()
	if r.opt.Duration > 0 {
		deadlineCtx, deadlineCancel := context.WithTimeout(schedCtx, r.opt.Duration)
		schedCtx = deadlineCtx
		defer deadlineCancel()
	}

	// Unbuffered: a permit is only sent to a slot that announced itself idle.
	permits := make(chan struct{})
	var idle int64

	execute := func() {
		if r.opt.Iteration == nil {
			atomic.AddInt64(&completed, 1)
			return
		}
		err := r.opt.Iteration.Iterate(iterCtx)
		if err != nil {
			atomic.AddInt64(&errs, 1)
		}
		if iterCtx.Err() != nil {
			atomic.AddInt64(&interrupted, 1)
		} else {
			atomic.AddInt64(&completed, 1)
		}
	}

	var wg sync.WaitGroup
	// A slot either starts with an iteration in hand or is counted idle
	// before its goroutine runs, so the first arrival never races slot startup.
	spawn := func(startNow bool) {
		vus++
		wg.Add(1)
		if !startNow {
			atomic.AddInt64(&idle, 1)
		}
		go func() {
			defer wg.Done()
			if startNow {
				execute()
			}
			for first := !startNow; ; first = false {
				if !first {
					atomic.AddInt64(&idle, 1)
				}
				if _, ok := <-permits; !ok {
					return
				}
				execute()
			}
		}()
	}
	for i := 0; i < r.opt.PreAllocatedVUs; i++ {
		spawn(false)
	}

	log := r.opt.Logger
	if r.opt.PerSecond() <= 0 {
		log.Warn().Msg("arrival rate is zero, no iterations will be started")
	}

	// Scheduler: serializes pacing so starts never burst across workers.
	for r.opt.PerSecond() > 0 {
		if err := r.arrival.Wait(schedCtx); err != nil {
			break
		}
		// Only the scheduler decrements idle, so a positive count is a claim
		// on a slot that is already blocked on (or about to block on) permits.
		if atomic.LoadInt64(&idle) > 0 {
			atomic.AddInt64(&idle, -1)
			permits <- struct{}{}
			started++
			continue
		}
		if vus < r.opt.MaxVUs {
			spawn(true)
			started++
			log.Debug().Int("vus", vus).Msg("all worker slots busy, started a new one")
			continue
		}
		dropped++
		log.Warn().Int("max_vus", r.opt.MaxVUs).Msg("insufficient worker slots, iteration dropped")
	}
	close(permits)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if r.opt.GracefulStop > 0 {
		timer := time.NewTimer(r.opt.GracefulStop)
		select {
		case <-done:
		case <-timer.C:
			log.Info().Dur("graceful_stop", r.opt.GracefulStop).Msg("graceful stop elapsed, interrupting in-flight iterations")
		}
		timer.Stop()
	}
	cancelIterations()
	<-done

	return Result{
		Started:     started,
		Completed:   atomic.LoadInt64(&completed),
		Interrupted: atomic.LoadInt64(&interrupted),
		Dropped:     dropped,
		Errors:      atomic.LoadInt64(&errs),
		PeakVUs:     vus,
		Duration:    time.Since(start),
	}
}
