package motion

// MaxBurstLimit is the largest burst the firmware accepts. The step command
// carries the burst exponent as a single digit, so 2^9 is the ceiling.
const MaxBurstLimit int64 = 512

// Burst is one step command: a power-of-two step count in a resolved
// direction.
type Burst struct {
	Steps     int64
	Exponent  uint
	Direction Direction
}

// FloorPowerOfTwo returns the largest power of two that is <= n, or 0 when
// n < 1.
func FloorPowerOfTwo(n int64) int64 {
	if n < 1 {
		return 0
	}
	p := int64(1)
	for p <= n/2 {
		p <<= 1
	}
	return p
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int64) bool {
	return n > 0 && n&(n-1) == 0
}

// Plan splits delta into bursts, largest first. Starting from maxBurst, a
// burst size is emitted while it still fits in the remaining delta and is
// halved once it does not. The sum of the bursts never exceeds delta, and
// a zero or negative delta plans nothing.
func Plan(delta, maxBurst int64, dir Direction) []Burst {
	p := FloorPowerOfTwo(maxBurst)
	if delta <= 0 || p == 0 {
		return nil
	}

	exp := uint(0)
	for int64(1)<<exp < p {
		exp++
	}

	var bursts []Burst
	total := int64(0)
	for p >= 1 {
		for total+p <= delta {
			bursts = append(bursts, Burst{Steps: p, Exponent: exp, Direction: dir})
			total += p
		}
		p >>= 1
		exp--
	}
	return bursts
}
