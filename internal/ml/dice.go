package ml

// LossStats holds per-class sums collected over a whole batch.
type LossStats struct {
	Inter []float64
	Union []float64
}

func NewLossStats(classes int) *LossStats {
	return &LossStats{
		Inter: make([]float64, classes),
		Union: make([]float64, classes),
	}
}

func (s *LossStats) Classes() int {
	return len(s.Inter)
}

// ICriterion is a segmentation loss over per-pixel class probabilities.
// probs is pixel-major: probs[p*classes+c].
type ICriterion interface {
	Name() string
	Accumulate(stats *LossStats, probs []float32, target []uint8)
	Value(stats *LossStats) float64
	Gradient(stats *LossStats, probs []float32, target []uint8, grad []float32)
}

// DiceLoss is the soft multi-class Dice loss: 1 - mean over classes of
// (2*I + smooth) / (U + smooth), where I = sum(p*y) and U = sum(p) + sum(y).
type DiceLoss struct {
	Smooth float64
}

func NewDiceLoss() *DiceLoss {
	return &DiceLoss{Smooth: 1}
}

func (*DiceLoss) Name() string { return "DiceLoss" }

func (d *DiceLoss) Accumulate(stats *LossStats, probs []float32, target []uint8) {
	var classes = stats.Classes()
	for p, y := range target {
		var row = probs[p*classes : (p+1)*classes]
		for c, v := range row {
			stats.Union[c] += float64(v)
		}
		stats.Inter[y] += float64(row[y])
		stats.Union[y] += 1
	}
}

func (d *DiceLoss) Value(stats *LossStats) float64 {
	var classes = stats.Classes()
	var sum float64
	for c := 0; c < classes; c++ {
		sum += (2*stats.Inter[c] + d.Smooth) / (stats.Union[c] + d.Smooth)
	}
	return 1 - sum/float64(classes)
}

// Gradient writes dLoss/dProb for one sample of the batch described by stats.
func (d *DiceLoss) Gradient(stats *LossStats, probs []float32, target []uint8, grad []float32) {
	var classes = stats.Classes()
	var onHit = make([]float64, classes)
	var onMiss = make([]float64, classes)
	for c := 0; c < classes; c++ {
		var u = stats.Union[c] + d.Smooth
		var n = 2*stats.Inter[c] + d.Smooth
		var scale = -1 / (float64(classes) * u * u)
		onHit[c] = scale * (2*u - n)
		onMiss[c] = scale * (-n)
	}
	for p, y := range target {
		var row = grad[p*classes : (p+1)*classes]
		for c := range row {
			row[c] = float32(onMiss[c])
		}
		row[y] = float32(onHit[y])
	}
}
