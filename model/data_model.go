package model

import (
	"fmt"
	"math"
	"time"

	"surromc/pipeline"
	"surromc/table"
)

// DataModel serves exact-match lookups over paired input/output datasets
// loaded from files. Row i of the output file is the recorded result for
// row i of the input file. Read-only after construction; Evaluate is safe
// for concurrent callers.
type DataModel struct {
	inputs  [][]float64
	outputs [][]float64
	index   map[string]int

	cost             float64
	waitCostDuration bool
}

type options struct {
	skipHeader int
	waitCost   bool
	gbk        bool
}

// Option configures DataModel construction.
type Option func(*options)

// SkipHeaderRows drops n leading rows from both data files.
func SkipHeaderRows(n int) Option {
	return func(o *options) { o.skipHeader = n }
}

// WaitCostDuration makes Evaluate sleep for the model cost, in seconds,
// before returning. Used to emulate realistic evaluation latency in
// timing-sensitive studies.
func WaitCostDuration() Option {
	return func(o *options) { o.waitCost = true }
}

// GBK decodes both data files from GBK.
func GBK() Option {
	return func(o *options) { o.gbk = true }
}

// NewDataModel loads and validates the input and output files. cost is the
// simulated expense of one evaluation, in seconds; it must be finite and
// non-negative.
func NewDataModel(inputPath, outputPath string, cost float64, opts ...Option) (*DataModel, error) {
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return nil, &ParameterError{Param: "cost", Reason: "must be a finite number"}
	}
	if cost < 0 {
		return nil, &ParameterError{Param: "cost", Reason: fmt.Sprintf("must not be negative, got %v", cost)}
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.skipHeader < 0 {
		return nil, &ParameterError{Param: "skip_header_rows", Reason: fmt.Sprintf("must not be negative, got %d", o.skipHeader)}
	}

	tableOpts := table.Options{SkipHeader: o.skipHeader, GBK: o.gbk}
	inputs, err := table.Load(inputPath, tableOpts)
	if err != nil {
		return nil, &ValidationError{Source: inputPath, Reason: err.Error()}
	}
	outputs, err := table.Load(outputPath, tableOpts)
	if err != nil {
		return nil, &ValidationError{Source: outputPath, Reason: err.Error()}
	}

	in := &pipeline.Dataset{Name: inputPath, Rows: inputs}
	out := &pipeline.Dataset{Name: outputPath, Rows: outputs}

	checks := pipeline.NewValidator(&pipeline.NaNRule{}, &pipeline.WidthRule{})
	if err := checks.Check(in); err != nil {
		return nil, &ValidationError{Source: inputPath, Reason: err.Error()}
	}
	if err := checks.Check(out); err != nil {
		return nil, &ValidationError{Source: outputPath, Reason: err.Error()}
	}
	if err := pipeline.CheckPair(in, out); err != nil {
		return nil, &ValidationError{Source: inputPath, Reason: err.Error()}
	}
	// Duplicate inputs are rejected eagerly: a duplicated row would make
	// every later lookup of that value ambiguous. Outputs may repeat, so
	// the rule only runs against the input table.
	unique := pipeline.NewValidator(&pipeline.DuplicateRowRule{})
	if err := unique.Check(in); err != nil {
		return nil, &ValidationError{Source: inputPath, Reason: err.Error()}
	}

	index := make(map[string]int, len(inputs))
	for i, row := range inputs {
		index[pipeline.RowKey(row)] = i
	}

	return &DataModel{
		inputs:           inputs,
		outputs:          outputs,
		index:            index,
		cost:             cost,
		waitCostDuration: o.waitCost,
	}, nil
}

// Evaluate returns the recorded output for a sample exactly equal to one
// of the stored input rows. Equality is exact, not tolerance-based.
func (m *DataModel) Evaluate(sample []float64) ([]float64, error) {
	if len(sample) == 0 {
		return nil, &SampleError{Reason: "sample is empty"}
	}
	for i, value := range sample {
		if math.IsNaN(value) {
			return nil, &SampleError{Reason: fmt.Sprintf("value %d is NaN", i)}
		}
	}
	if len(sample) != m.InputDim() {
		return nil, &SampleError{Reason: fmt.Sprintf("sample has %d values, model inputs have %d", len(sample), m.InputDim())}
	}

	i, ok := m.index[pipeline.RowKey(sample)]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNoMatch, sample)
	}

	if m.waitCostDuration {
		time.Sleep(time.Duration(m.cost * float64(time.Second)))
	}

	output := make([]float64, len(m.outputs[i]))
	copy(output, m.outputs[i])
	return output, nil
}

// EvaluateMatrix accepts a sample passed as a single-row matrix.
func (m *DataModel) EvaluateMatrix(rows [][]float64) ([]float64, error) {
	if len(rows) != 1 {
		return nil, &SampleError{Reason: fmt.Sprintf("expected a single row, got %d", len(rows))}
	}
	return m.Evaluate(rows[0])
}

// EvaluateScalar evaluates a one-in/one-out model on a single value.
func (m *DataModel) EvaluateScalar(x float64) (float64, error) {
	if m.InputDim() != 1 || m.OutputDim() != 1 {
		return 0, &SampleError{Reason: fmt.Sprintf("model is %dx%d, not scalar", m.InputDim(), m.OutputDim())}
	}
	output, err := m.Evaluate([]float64{x})
	if err != nil {
		return 0, err
	}
	return output[0], nil
}

// Len returns the number of stored samples.
func (m *DataModel) Len() int {
	return len(m.inputs)
}

// InputDim returns the width of the input rows.
func (m *DataModel) InputDim() int {
	return len(m.inputs[0])
}

// OutputDim returns the width of the output rows.
func (m *DataModel) OutputDim() int {
	return len(m.outputs[0])
}

// Cost returns the simulated cost of one evaluation, in seconds.
func (m *DataModel) Cost() float64 {
	return m.cost
}

// InputRow returns a copy of input row i.
func (m *DataModel) InputRow(i int) []float64 {
	row := make([]float64, len(m.inputs[i]))
	copy(row, m.inputs[i])
	return row
}

// Inputs returns a copy of the stored input table.
func (m *DataModel) Inputs() [][]float64 {
	rows := make([][]float64, len(m.inputs))
	for i := range m.inputs {
		rows[i] = m.InputRow(i)
	}
	return rows
}
