// Package sim runs Monte Carlo studies over surrogate models.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"surromc/model"
)

// Sampler produces the input samples a study evaluates.
type Sampler interface {
	Sample(i int) []float64
}

// IndexSampler draws random rows from a fixed input table. It keeps
// data-backed models in-domain: every drawn sample is a stored row.
type IndexSampler struct {
	rows [][]float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewIndexSampler creates a sampler over rows. A zero seed seeds from the
// current time.
func NewIndexSampler(rows [][]float64, seed int64) *IndexSampler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &IndexSampler{
		rows: rows,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Sample returns a copy of a randomly chosen row.
func (s *IndexSampler) Sample(i int) []float64 {
	s.mu.Lock()
	index := s.rng.Intn(len(s.rows))
	s.mu.Unlock()

	row := make([]float64, len(s.rows[index]))
	copy(row, s.rows[index])
	return row
}

// StudyConfig configures one Monte Carlo study.
type StudyConfig struct {
	Name    string        `yaml:"name"`
	Model   string        `yaml:"model"`
	Samples int           `yaml:"samples"`
	Workers int           `yaml:"workers"`
	Seed    int64         `yaml:"seed"`
	Timeout time.Duration `yaml:"timeout"`
}

// Result aggregates the outputs of one study.
type Result struct {
	N         int           `json:"n"`
	Failures  int           `json:"failures"`
	Mean      []float64     `json:"mean"`
	Variance  []float64     `json:"variance"`
	StdError  []float64     `json:"std_error"`
	TotalCost float64       `json:"total_cost"`
	Duration  time.Duration `json:"duration"`
}

// Study evaluates a model over sampled inputs and aggregates per-dimension
// statistics.
type Study struct {
	config  StudyConfig
	model   model.Model
	sampler Sampler
	logger  *zap.Logger

	progress func(done, total int)

	mu      sync.Mutex
	started bool
}

// NewStudy creates a study. logger may be nil.
func NewStudy(config StudyConfig, m model.Model, sampler Sampler, logger *zap.Logger) *Study {
	if config.Samples <= 0 {
		config.Samples = 1000
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Study{
		config:  config,
		model:   m,
		sampler: sampler,
		logger:  logger,
	}
}

// OnProgress registers a callback invoked after each completed evaluation.
func (s *Study) OnProgress(fn func(done, total int)) {
	s.progress = fn
}

// Run executes the study. Evaluation errors are counted as failures rather
// than aborting the study; a study where every evaluation fails errors.
func (s *Study) Run(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil, errors.New("study is already running")
	}
	s.started = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
	}()

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	total := s.config.Samples
	s.logger.Info("starting study",
		zap.String("study", s.config.Name),
		zap.Int("samples", total),
		zap.Int("workers", s.config.Workers))

	start := time.Now()

	jobs := make(chan int)
	outputs := make(chan []float64)
	failures := make(chan error)

	var wg sync.WaitGroup
	for w := 0; w < s.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				output, err := s.model.Evaluate(s.sampler.Sample(i))
				if err != nil {
					select {
					case failures <- err:
					case <-ctx.Done():
						return
					}
					continue
				}
				select {
				case outputs <- output:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := 0; i < total; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	collectDone := make(chan struct{})
	acc := newAccumulator()
	failed := 0
	go func() {
		defer close(collectDone)
		done := 0
		for done < total {
			select {
			case output := <-outputs:
				if !acc.add(output) {
					s.logger.Warn("evaluation output width mismatch",
						zap.String("study", s.config.Name),
						zap.Int("got", len(output)),
						zap.Int("want", len(acc.means)))
					failed++
				}
				done++
			case err := <-failures:
				s.logger.Warn("evaluation failed", zap.String("study", s.config.Name), zap.Error(err))
				failed++
				done++
			case <-ctx.Done():
				return
			}
			if s.progress != nil {
				s.progress(done, total)
			}
		}
	}()

	<-collectDone
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("study %s aborted: %w", s.config.Name, err)
	}
	if acc.n == 0 {
		return nil, fmt.Errorf("study %s: all %d evaluations failed", s.config.Name, total)
	}

	result := &Result{
		N:        acc.n,
		Failures: failed,
		Mean:     acc.mean(),
		Variance: acc.variance(),
		StdError: acc.stdError(),
		Duration: time.Since(start),
	}
	if c, ok := s.model.(model.Coster); ok {
		result.TotalCost = c.Cost() * float64(result.N)
	}

	s.logger.Info("study completed",
		zap.String("study", s.config.Name),
		zap.Int("n", result.N),
		zap.Int("failures", result.Failures),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// accumulator tracks per-dimension running mean and variance (Welford).
type accumulator struct {
	n     int
	means []float64
	m2    []float64
}

func newAccumulator() *accumulator {
	return &accumulator{}
}

// add folds one output vector into the running statistics. It reports
// false when the vector's width disagrees with earlier outputs, in which
// case no statistics change and the caller must count the sample as failed.
func (a *accumulator) add(output []float64) bool {
	if a.means == nil {
		a.means = make([]float64, len(output))
		a.m2 = make([]float64, len(output))
	}
	if len(output) != len(a.means) {
		return false
	}
	a.n++
	for d, value := range output {
		delta := value - a.means[d]
		a.means[d] += delta / float64(a.n)
		a.m2[d] += delta * (value - a.means[d])
	}
	return true
}

func (a *accumulator) mean() []float64 {
	out := make([]float64, len(a.means))
	copy(out, a.means)
	return out
}

func (a *accumulator) variance() []float64 {
	out := make([]float64, len(a.m2))
	if a.n < 2 {
		return out
	}
	for d, m2 := range a.m2 {
		out[d] = m2 / float64(a.n-1)
	}
	return out
}

func (a *accumulator) stdError() []float64 {
	variance := a.variance()
	out := make([]float64, len(variance))
	for d, v := range variance {
		out[d] = math.Sqrt(v / float64(a.n))
	}
	return out
}
