package batch

import (
	"context"
	"sync"
	"time"

	"github.com/ochronus/gomonsterapi/internal/services/monster"
	"github.com/sirupsen/logrus"
)

// ParamCheck validates parameters before a job is submitted.
type ParamCheck func(model string, params any) error

// Runner executes batch jobs through a fixed pool of workers.
type Runner struct {
	client  monster.ClientAPI
	logger  *logrus.Logger
	workers int
	check   ParamCheck
}

// NewRunner creates a runner with the given pool size. check may be nil.
func NewRunner(client monster.ClientAPI, logger *logrus.Logger, workers int, check ParamCheck) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		client:  client,
		logger:  logger,
		workers: workers,
		check:   check,
	}
}

// Run executes jobs and returns one outcome per job, in input order. When ctx
// is canceled, jobs not yet started are reported with the context error.
func (r *Runner) Run(ctx context.Context, jobs []Job) []Outcome {
	outcomes := make([]Outcome, len(jobs))
	for i := range jobs {
		outcomes[i] = Outcome{Name: jobs[i].Name, Model: jobs[i].Model}
	}

	workers := r.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobChan := make(chan int)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go r.worker(ctx, &wg, jobChan, jobs, outcomes)
	}

produce:
	for i := range jobs {
		select {
		case <-ctx.Done():
			for k := i; k < len(jobs); k++ {
				outcomes[k].fail(ctx.Err())
			}
			r.logger.Warnf("batch canceled, %d jobs not started", len(jobs)-i)
			break produce
		case jobChan <- i:
		}
	}
	close(jobChan)

	wg.Wait()
	return outcomes
}

// worker handles jobs until the channel is closed or ctx is canceled
func (r *Runner) worker(ctx context.Context, wg *sync.WaitGroup, jobChan <-chan int, jobs []Job, outcomes []Outcome) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case i, ok := <-jobChan:
			if !ok {
				return
			}
			r.runJob(ctx, &jobs[i], &outcomes[i])
		}
	}
}

func (r *Runner) runJob(ctx context.Context, job *Job, outcome *Outcome) {
	start := time.Now()
	defer func() { outcome.Duration = time.Since(start) }()

	if r.check != nil {
		if err := r.check(job.Model, job.Params); err != nil {
			r.logger.Errorf("%s: rejected: %v", job, err)
			outcome.fail(err)
			return
		}
	}

	r.logger.Infof("%s: generation started", job)
	result, err := r.client.Generate(ctx, job.Model, job.Params)
	if err != nil {
		r.logger.Errorf("%s: generation failed: %v", job, err)
		outcome.fail(err)
		return
	}

	outcome.Result = result
	r.logger.Infof("%s: generation done", job)
}
