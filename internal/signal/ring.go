package signal

// ring is a fixed-capacity ring buffer of weighted samples with running
// sums. Eviction is O(1); sums are rebuilt from the raw buffer every
// resyncEvery pushes to bound floating-point drift.
type ring struct {
	values  []float64
	weights []float64
	head    int
	size    int

	sum       float64 // sum of value*weight
	sumSq     float64 // sum of value^2 * weight
	weightSum float64

	pushes      int
	resyncEvery int
}

func newRing(capacity, resyncEvery int) *ring {
	if capacity <= 0 {
		capacity = 1
	}
	if resyncEvery <= 0 {
		resyncEvery = 1024
	}
	return &ring{
		values:      make([]float64, capacity),
		weights:     make([]float64, capacity),
		resyncEvery: resyncEvery,
	}
}

// push adds a sample, evicting the oldest when full.
func (r *ring) push(value, weight float64) {
	if r.size == len(r.values) {
		idx := r.head
		old, oldW := r.values[idx], r.weights[idx]
		r.sum -= old * oldW
		r.sumSq -= old * old * oldW
		r.weightSum -= oldW
		r.head = (r.head + 1) % len(r.values)
		r.size--
	}
	idx := (r.head + r.size) % len(r.values)
	r.values[idx] = value
	r.weights[idx] = weight
	r.sum += value * weight
	r.sumSq += value * value * weight
	r.weightSum += weight
	r.size++

	r.pushes++
	if r.pushes%r.resyncEvery == 0 {
		r.resync()
	}
}

// resync rebuilds running sums from the raw buffer.
func (r *ring) resync() {
	var sum, sumSq, weightSum float64
	for i := 0; i < r.size; i++ {
		idx := (r.head + i) % len(r.values)
		v, w := r.values[idx], r.weights[idx]
		sum += v * w
		sumSq += v * v * w
		weightSum += w
	}
	r.sum = sum
	r.sumSq = sumSq
	r.weightSum = weightSum
}

func (r *ring) count() int { return r.size }

// mean returns the weight-averaged value, or 0 with ok=false when empty.
func (r *ring) mean() (float64, bool) {
	if r.size == 0 || r.weightSum <= 0 {
		return 0, false
	}
	return r.sum / r.weightSum, true
}

// variance returns the weight-averaged sample variance.
func (r *ring) variance() float64 {
	if r.size < 2 || r.weightSum <= 0 {
		return 0
	}
	mean := r.sum / r.weightSum
	v := r.sumSq/r.weightSum - mean*mean
	if v < 0 {
		// negative from float cancellation, clamp
		return 0
	}
	return v * float64(r.size) / float64(r.size-1)
}
