package ml

import "math"

const (
	Beta1   = 0.9
	Beta2   = 0.999
	Epsilon = 1e-8
)

// Optimizer turns an accumulated gradient into a parameter delta.
type Optimizer interface {
	// Step starts a new update round. Called once per batch.
	Step()
	Delta(g *Gradient) float64
}

// Adam is the Adam optimizer with bias correction.
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	step  int
	corr1 float64
	corr2 float64
}

func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        Beta1,
		Beta2:        Beta2,
		Epsilon:      Epsilon,
	}
}

func (a *Adam) Step() {
	a.step++
	a.corr1 = 1 - math.Pow(a.Beta1, float64(a.step))
	a.corr2 = 1 - math.Pow(a.Beta2, float64(a.step))
}

// Steps returns the number of update rounds so far.
func (a *Adam) Steps() int {
	return a.step
}

func (a *Adam) Delta(g *Gradient) float64 {
	if a.step == 0 {
		a.Step()
	}
	g.M1 = g.M1*a.Beta1 + g.Value*(1-a.Beta1)
	g.M2 = g.M2*a.Beta2 + (g.Value*g.Value)*(1-a.Beta2)

	var m1 = g.M1 / a.corr1
	var m2 = g.M2 / a.corr2
	return a.LearningRate * m1 / (math.Sqrt(m2) + a.Epsilon)
}

type Gradient struct {
	Value float64
	M1    float64
	M2    float64
}

type Gradients struct {
	Data []Gradient
	Rows int
	Cols int
}

func NewGradients(rows, cols int) Gradients {
	return Gradients{
		Data: make([]Gradient, cols*rows),
		Rows: rows,
		Cols: cols,
	}
}

func (g *Gradients) Add(row, col int, delta float64) {
	g.Data[col*g.Rows+row].Value += delta
}

// AddMatrix accumulates per-thread gradients and clears them.
func (g *Gradients) AddMatrix(m *Matrix) {
	for i := range g.Data {
		g.Data[i].Value += m.Data[i]
		m.Data[i] = 0
	}
}

func (g *Gradients) Apply(m *Matrix, opt Optimizer) {
	for i := range g.Data {
		m.Data[i] -= opt.Delta(&g.Data[i])
		g.Data[i].Value = 0
	}
}
