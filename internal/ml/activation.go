package ml

import "math"

type IActivationFn interface {
	Sigma(x float64) float64
	SigmaPrime(x float64) float64
}

type ReLuActivation struct{}

func (*ReLuActivation) Sigma(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func (*ReLuActivation) SigmaPrime(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

// Softmax writes normalized exponentials of logits into out. logits is overwritten.
func Softmax(logits []float64, out []float32) {
	var max = logits[0]
	for _, x := range logits[1:] {
		if x > max {
			max = x
		}
	}
	var sum float64
	for i, x := range logits {
		var e = math.Exp(x - max)
		logits[i] = e
		sum += e
	}
	for i := range logits {
		out[i] = float32(logits[i] / sum)
	}
}

// Argmax returns the index of the largest value.
func Argmax(values []float32) int {
	var best = 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
