package ml

import "math"

// Confusion is a confusion matrix over class indices, Counts[target*Classes+predicted].
type Confusion struct {
	Classes int
	Counts  []int64
}

func NewConfusion(classes int) *Confusion {
	return &Confusion{
		Classes: classes,
		Counts:  make([]int64, classes*classes),
	}
}

func (m *Confusion) Add(predicted, target int) {
	m.Counts[target*m.Classes+predicted]++
}

// AddProbs adds the argmax prediction of every pixel.
func (m *Confusion) AddProbs(probs []float32, target []uint8) {
	for p, y := range target {
		var pred = Argmax(probs[p*m.Classes : (p+1)*m.Classes])
		m.Add(pred, int(y))
	}
}

// IoU returns per-class intersection over union. Classes that appear neither
// in the prediction nor in the target are NaN.
func (m *Confusion) IoU() []float64 {
	var result = make([]float64, m.Classes)
	for c := 0; c < m.Classes; c++ {
		var tp = m.Counts[c*m.Classes+c]
		var fn, fp int64
		for k := 0; k < m.Classes; k++ {
			if k == c {
				continue
			}
			fn += m.Counts[c*m.Classes+k]
			fp += m.Counts[k*m.Classes+c]
		}
		var union = tp + fn + fp
		if union == 0 {
			result[c] = math.NaN()
			continue
		}
		result[c] = float64(tp) / float64(union)
	}
	return result
}

// MeanIoU averages IoU over classes present in prediction or target. Zero when
// nothing was counted.
func (m *Confusion) MeanIoU() float64 {
	var sum float64
	var count int
	for _, v := range m.IoU() {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
