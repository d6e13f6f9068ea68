// Package difficulty implements the chain's sliding-window retarget:
// look at the last W blocks, compare elapsed wall-clock time against
// the target, and scale the current difficulty by the ratio, clamped
// both to an absolute [min, max] range and to a per-adjustment factor R
// so no single retarget can move difficulty by more than a bounded
// multiple.
package difficulty

// BlockTimestamps is the minimal view the retarget needs of the chain:
// just the timestamp and difficulty of each block in height order. The
// chain engine supplies this from its in-memory header array.
type BlockTimestamps struct {
	Timestamp  int64
	Difficulty uint32
}

// Params bundles the difficulty controller's tunables, sized
// per-network by chaincfg.Params.
type Params struct {
	// TargetBlockTimeSeconds is the desired spacing between blocks.
	TargetBlockTimeSeconds int64
	// Window is W, the number of trailing blocks the retarget looks at.
	Window uint64
	// MaxAdjustmentFactor is R: new/old must lie in [1/R, R].
	MaxAdjustmentFactor uint32
	MinDifficulty       uint32
	MaxDifficulty       uint32
}

// NextDifficulty computes the difficulty for the block following the
// chain described by blocks (oldest first, current tip last). With no
// blocks it returns MinDifficulty; with a single block, or non-positive
// elapsed time (identical or retrograde timestamps), it returns the
// current (last) difficulty. Every result is clamped to
// [MinDifficulty, MaxDifficulty].
func NextDifficulty(blocks []BlockTimestamps, p Params) uint32 {
	if len(blocks) == 0 {
		return clamp(p.MinDifficulty, p)
	}
	current := blocks[len(blocks)-1].Difficulty
	if len(blocks) < 2 {
		return clamp(current, p)
	}

	window := p.Window
	if window == 0 {
		window = 1
	}
	w := window
	if uint64(len(blocks)) < w {
		w = uint64(len(blocks))
	}
	first := blocks[len(blocks)-int(w)]
	last := blocks[len(blocks)-1]

	elapsed := last.Timestamp - first.Timestamp
	if elapsed <= 0 {
		return clamp(current, p)
	}
	targetElapsed := int64(w) * p.TargetBlockTimeSeconds
	if targetElapsed <= 0 {
		return clamp(current, p)
	}

	next := int64(current) * targetElapsed / elapsed
	if next < 1 {
		next = 1
	}

	factor := int64(p.MaxAdjustmentFactor)
	if factor < 1 {
		factor = 1
	}
	minBound := int64(current) / factor
	if minBound < 1 {
		minBound = 1
	}
	maxBound := int64(current) * factor
	if next < minBound {
		next = minBound
	}
	if next > maxBound {
		next = maxBound
	}

	return clamp(uint32(next), p)
}

func clamp(d uint32, p Params) uint32 {
	minD := p.MinDifficulty
	if minD == 0 {
		minD = 1
	}
	if d < minD {
		return minD
	}
	if p.MaxDifficulty > 0 && d > p.MaxDifficulty {
		return p.MaxDifficulty
	}
	return d
}
