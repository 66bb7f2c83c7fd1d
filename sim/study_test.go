package sim

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"
)

// stubModel is a trivial model for driver tests: "ones" always returns 1,
// "repeat" echoes the sample back, "ragged" alternates output widths.
type stubModel struct {
	mode string
	cost float64
	fail bool

	calls int64
}

func (m *stubModel) Evaluate(sample []float64) ([]float64, error) {
	n := atomic.AddInt64(&m.calls, 1)
	if m.fail {
		return nil, errors.New("stub failure")
	}
	switch m.mode {
	case "ones":
		return []float64{1}, nil
	case "repeat":
		out := make([]float64, len(sample))
		copy(out, sample)
		return out, nil
	case "ragged":
		if n%2 == 0 {
			return []float64{1, 2}, nil
		}
		return []float64{1}, nil
	}
	return nil, errors.New("unknown stub mode")
}

func (m *stubModel) Cost() float64 {
	return m.cost
}

func TestStudyOnesModel(t *testing.T) {
	rows := [][]float64{{1, 2}, {3, 4}, {5, 6}}
	sampler := NewIndexSampler(rows, 42)
	m := &stubModel{mode: "ones", cost: 0.5}

	study := NewStudy(StudyConfig{Name: "ones", Samples: 200, Workers: 4}, m, sampler, nil)
	result, err := study.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.N != 200 {
		t.Errorf("N = %d, want 200", result.N)
	}
	if result.Failures != 0 {
		t.Errorf("Failures = %d, want 0", result.Failures)
	}
	if len(result.Mean) != 1 || result.Mean[0] != 1 {
		t.Errorf("Mean = %v, want [1]", result.Mean)
	}
	if result.Variance[0] != 0 {
		t.Errorf("Variance = %v, want [0]", result.Variance)
	}
	if result.TotalCost != 100 {
		t.Errorf("TotalCost = %v, want 100", result.TotalCost)
	}
	if atomic.LoadInt64(&m.calls) != 200 {
		t.Errorf("model called %d times, want 200", m.calls)
	}
}

func TestStudyRepeatModelAggregates(t *testing.T) {
	// Two one-dimensional rows drawn uniformly: mean should land between
	// them and variance should be positive.
	rows := [][]float64{{0}, {10}}
	sampler := NewIndexSampler(rows, 7)
	m := &stubModel{mode: "repeat"}

	study := NewStudy(StudyConfig{Name: "repeat", Samples: 2000, Workers: 8}, m, sampler, nil)
	result, err := study.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Mean[0] < 3 || result.Mean[0] > 7 {
		t.Errorf("Mean = %v, want near 5", result.Mean[0])
	}
	if result.Variance[0] <= 0 {
		t.Errorf("Variance = %v, want positive", result.Variance[0])
	}
	want := math.Sqrt(result.Variance[0] / float64(result.N))
	if math.Abs(result.StdError[0]-want) > 1e-12 {
		t.Errorf("StdError = %v, want %v", result.StdError[0], want)
	}
}

func TestStudyAllFailures(t *testing.T) {
	sampler := NewIndexSampler([][]float64{{1}}, 1)
	m := &stubModel{mode: "ones", fail: true}

	study := NewStudy(StudyConfig{Name: "failing", Samples: 10, Workers: 2}, m, sampler, nil)
	if _, err := study.Run(context.Background()); err == nil {
		t.Fatal("expected error when every evaluation fails")
	}
}

func TestStudyCountsWidthMismatchAsFailure(t *testing.T) {
	sampler := NewIndexSampler([][]float64{{1}}, 3)
	m := &stubModel{mode: "ragged"}

	study := NewStudy(StudyConfig{Name: "ragged", Samples: 100, Workers: 4}, m, sampler, nil)
	result, err := study.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Every sample must be accounted for: either aggregated or failed.
	if result.N+result.Failures != 100 {
		t.Errorf("N + Failures = %d + %d, want 100", result.N, result.Failures)
	}
	if result.Failures == 0 {
		t.Error("Failures = 0, want mismatched outputs counted as failures")
	}
	if result.N == 0 {
		t.Error("N = 0, want matching outputs aggregated")
	}
}

func TestStudyCancellation(t *testing.T) {
	sampler := NewIndexSampler([][]float64{{1}}, 1)
	m := &stubModel{mode: "ones"}

	study := NewStudy(StudyConfig{Name: "cancelled", Samples: 1000000, Workers: 2}, m, sampler, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := study.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestStudyProgressCallback(t *testing.T) {
	sampler := NewIndexSampler([][]float64{{1}}, 1)
	m := &stubModel{mode: "ones"}

	study := NewStudy(StudyConfig{Name: "progress", Samples: 50, Workers: 2}, m, sampler, nil)

	var calls int64
	var last int64
	study.OnProgress(func(done, total int) {
		atomic.AddInt64(&calls, 1)
		atomic.StoreInt64(&last, int64(done))
		if total != 50 {
			t.Errorf("total = %d, want 50", total)
		}
	})

	if _, err := study.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if atomic.LoadInt64(&calls) != 50 {
		t.Errorf("progress called %d times, want 50", calls)
	}
	if atomic.LoadInt64(&last) != 50 {
		t.Errorf("final done = %d, want 50", last)
	}
}

func TestIndexSamplerStaysInDomain(t *testing.T) {
	rows := [][]float64{{1, 2}, {3, 4}, {5, 6}}
	sampler := NewIndexSampler(rows, 99)

	for i := 0; i < 100; i++ {
		sample := sampler.Sample(i)
		found := false
		for _, row := range rows {
			if sample[0] == row[0] && sample[1] == row[1] {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("sample %v is not a stored row", sample)
		}
	}

	// Mutating a sample must not corrupt the table.
	sample := sampler.Sample(0)
	sample[0] = -999
	for _, row := range rows {
		if row[0] == -999 {
			t.Fatal("Sample returned a live reference to table data")
		}
	}
}
