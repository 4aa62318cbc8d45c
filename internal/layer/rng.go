package layer

// RNG is a small deterministic generator (splitmix64) used for weight
// initialization and dropout masks, so runs are reproducible for a seed.
type RNG struct {
	state uint64
}

// NewRNG creates a deterministic RNG with the given seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{state: seed}
}

// Uint64 returns the next value in the sequence.
func (r *RNG) Uint64() uint64 {
	r.state += 0x9e3779b97f4a7c15
	z := r.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// RandFloat returns a float64 in [0, 1).
func (r *RNG) RandFloat() float64 {
	return float64(r.Uint64()>>11) / (1 << 53)
}
