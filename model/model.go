package model

// Model is the single capability the framework requires of a model:
// map one input sample to one output vector.
type Model interface {
	Evaluate(sample []float64) ([]float64, error)
}

// Coster is implemented by models with a known per-evaluation cost.
type Coster interface {
	Cost() float64
}
