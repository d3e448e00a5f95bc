package model

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/ChizhovVadim/landcover/internal/ml"
)

const kernel = 3

type Config struct {
	InChannels int
	Hidden     int
	Classes    int
}

func (c Config) patchSize() int {
	return c.InChannels * kernel * kernel
}

// Net is a small fully convolutional segmentation network:
// 3x3 convolution + ReLU, then 1x1 convolution + per-pixel softmax.
type Net struct {
	cfg        Config
	activation ml.IActivationFn

	weights1, biases1        ml.Matrix
	weights2, biases2        ml.Matrix
	wGradients1, bGradients1 ml.Gradients
	wGradients2, bGradients2 ml.Gradients

	threadData []threadData
}

type threadData struct {
	input  []float64
	pre    []float64
	hidden []float64
	logits []float64
	dz     []float64
	dh     []float64

	wGradients1, bGradients1 ml.Matrix
	wGradients2, bGradients2 ml.Matrix
}

func New(cfg Config, threads int, rnd *rand.Rand) *Net {
	var n = &Net{}
	n.init(cfg, threads)
	// ReLU fan-in init for the hidden layer, Xavier for the output layer.
	ml.InitUniform(rnd, n.weights1.Data, 2.0/float64(cfg.patchSize()))
	ml.InitUniform(rnd, n.weights2.Data, 2.0/float64(cfg.Hidden+cfg.Classes))
	return n
}

func (n *Net) init(cfg Config, threads int) {
	if threads < 1 {
		threads = 1
	}
	var patch = cfg.patchSize()
	n.cfg = cfg
	n.activation = &ml.ReLuActivation{}
	n.weights1 = ml.NewMatrix(cfg.Hidden, patch)
	n.biases1 = ml.NewMatrix(cfg.Hidden, 1)
	n.weights2 = ml.NewMatrix(cfg.Classes, cfg.Hidden)
	n.biases2 = ml.NewMatrix(cfg.Classes, 1)
	n.wGradients1 = ml.NewGradients(cfg.Hidden, patch)
	n.bGradients1 = ml.NewGradients(cfg.Hidden, 1)
	n.wGradients2 = ml.NewGradients(cfg.Classes, cfg.Hidden)
	n.bGradients2 = ml.NewGradients(cfg.Classes, 1)
	n.threadData = make([]threadData, threads)
	for i := range n.threadData {
		n.threadData[i] = threadData{
			input:       make([]float64, patch),
			pre:         make([]float64, cfg.Hidden),
			hidden:      make([]float64, cfg.Hidden),
			logits:      make([]float64, cfg.Classes),
			dz:          make([]float64, cfg.Classes),
			dh:          make([]float64, cfg.Hidden),
			wGradients1: ml.NewMatrix(cfg.Hidden, patch),
			bGradients1: ml.NewMatrix(cfg.Hidden, 1),
			wGradients2: ml.NewMatrix(cfg.Classes, cfg.Hidden),
			bGradients2: ml.NewMatrix(cfg.Classes, 1),
		}
	}
}

func (n *Net) Config() Config { return n.cfg }

func (n *Net) Classes() int { return n.cfg.Classes }

// Forward returns per-pixel class probabilities for every image.
// Images are CHW with InChannels channels of size x size pixels.
func (n *Net) Forward(images [][]float32, size int) [][]float32 {
	var classes = n.cfg.Classes
	var probs = make([][]float32, len(images))
	for i := range probs {
		probs[i] = make([]float32, size*size*classes)
	}
	n.eachRow(len(images), size, func(td *threadData, sample, y int) {
		var image = images[sample]
		var out = probs[sample]
		for x := 0; x < size; x++ {
			n.forwardPixel(td, image, size, y, x)
			var offset = (y*size + x) * classes
			ml.Softmax(td.logits, out[offset:offset+classes])
		}
	})
	return probs
}

// Backward accumulates parameter gradients given dLoss/dProb for every pixel.
func (n *Net) Backward(images, probs, grads [][]float32, size int) {
	var classes = n.cfg.Classes
	var hidden = n.cfg.Hidden
	n.eachRow(len(images), size, func(td *threadData, sample, y int) {
		var image = images[sample]
		for x := 0; x < size; x++ {
			n.forwardPixel(td, image, size, y, x)
			var offset = (y*size + x) * classes
			var p = probs[sample][offset : offset+classes]
			var g = grads[sample][offset : offset+classes]

			// softmax backward
			var dot float64
			for k := range p {
				dot += float64(g[k]) * float64(p[k])
			}
			for k := range p {
				td.dz[k] = float64(p[k]) * (float64(g[k]) - dot)
			}

			for h := 0; h < hidden; h++ {
				td.dh[h] = 0
			}
			for k := 0; k < classes; k++ {
				var dz = td.dz[k]
				if dz == 0 {
					continue
				}
				td.bGradients2.Data[k] += dz
				for h := 0; h < hidden; h++ {
					td.wGradients2.Add(k, h, dz*td.hidden[h])
					td.dh[h] += n.weights2.Get(k, h) * dz
				}
			}

			for h := 0; h < hidden; h++ {
				var d = td.dh[h] * n.activation.SigmaPrime(td.pre[h])
				if d == 0 {
					continue
				}
				td.bGradients1.Data[h] += d
				for i, v := range td.input {
					if v != 0 {
						td.wGradients1.Add(h, i, d*v)
					}
				}
			}
		}
	})
	for i := range n.threadData {
		var td = &n.threadData[i]
		n.wGradients1.AddMatrix(&td.wGradients1)
		n.bGradients1.AddMatrix(&td.bGradients1)
		n.wGradients2.AddMatrix(&td.wGradients2)
		n.bGradients2.AddMatrix(&td.bGradients2)
	}
}

// Apply updates the parameters with the accumulated gradients.
func (n *Net) Apply(opt ml.Optimizer) {
	opt.Step()
	n.wGradients1.Apply(&n.weights1, opt)
	n.bGradients1.Apply(&n.biases1, opt)
	n.wGradients2.Apply(&n.weights2, opt)
	n.bGradients2.Apply(&n.biases2, opt)
}

func (n *Net) forwardPixel(td *threadData, image []float32, size, y, x int) {
	var plane = size * size
	var i = 0
	for c := 0; c < n.cfg.InChannels; c++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				var yy, xx = y + dy, x + dx
				if yy < 0 || yy >= size || xx < 0 || xx >= size {
					td.input[i] = 0
				} else {
					td.input[i] = float64(image[c*plane+yy*size+xx])
				}
				i++
			}
		}
	}
	for h := range td.hidden {
		var sum = n.biases1.Data[h]
		for i, v := range td.input {
			sum += n.weights1.Get(h, i) * v
		}
		td.pre[h] = sum
		td.hidden[h] = n.activation.Sigma(sum)
	}
	for k := range td.logits {
		var sum = n.biases2.Data[k]
		for h, v := range td.hidden {
			sum += n.weights2.Get(k, h) * v
		}
		td.logits[k] = sum
	}
}

// eachRow spreads (sample, row) pairs over the thread pool.
func (n *Net) eachRow(samples, size int, body func(td *threadData, sample, y int)) {
	var total = samples * size
	var index int32 = -1
	var wg = &sync.WaitGroup{}
	for i := range n.threadData {
		wg.Add(1)
		go func(td *threadData) {
			defer wg.Done()
			for {
				var i = int(atomic.AddInt32(&index, 1))
				if i >= total {
					break
				}
				body(td, i/size, i%size)
			}
		}(&n.threadData[i])
	}
	wg.Wait()
}
