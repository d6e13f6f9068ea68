package difficulty

import "testing"

func baseParams() Params {
	return Params{
		TargetBlockTimeSeconds: 120,
		Window:                 10,
		MaxAdjustmentFactor:    4,
		MinDifficulty:          1,
		MaxDifficulty:          64,
	}
}

func TestNextDifficultyFewerThanTwoBlocks(t *testing.T) {
	p := baseParams()
	if got := NextDifficulty(nil, p); got != p.MinDifficulty {
		t.Fatalf("empty chain: got %d want %d", got, p.MinDifficulty)
	}
	blocks := []BlockTimestamps{{Timestamp: 0, Difficulty: 5}}
	if got := NextDifficulty(blocks, p); got != 5 {
		t.Fatalf("single block: got %d want 5", got)
	}
}

func TestNextDifficultyRetrogradeTimestampUnchanged(t *testing.T) {
	p := baseParams()
	blocks := []BlockTimestamps{
		{Timestamp: 1000, Difficulty: 8},
		{Timestamp: 900, Difficulty: 8},
	}
	if got := NextDifficulty(blocks, p); got != 8 {
		t.Fatalf("retrograde timestamps: got %d want unchanged 8", got)
	}
}

func TestNextDifficultyFasterThanTargetIncreases(t *testing.T) {
	p := baseParams()
	blocks := make([]BlockTimestamps, 11)
	for i := range blocks {
		blocks[i] = BlockTimestamps{Timestamp: int64(i) * 60, Difficulty: 8} // half the target spacing
	}
	got := NextDifficulty(blocks, p)
	if got <= 8 {
		t.Fatalf("mining faster than target should raise difficulty, got %d", got)
	}
}

func TestNextDifficultySlowerThanTargetDecreases(t *testing.T) {
	p := baseParams()
	blocks := make([]BlockTimestamps, 11)
	for i := range blocks {
		blocks[i] = BlockTimestamps{Timestamp: int64(i) * 240, Difficulty: 8} // double the target spacing
	}
	got := NextDifficulty(blocks, p)
	if got >= 8 {
		t.Fatalf("mining slower than target should lower difficulty, got %d", got)
	}
}

func TestNextDifficultyClampedByAdjustmentFactor(t *testing.T) {
	p := baseParams()
	p.MaxAdjustmentFactor = 4
	blocks := make([]BlockTimestamps, 11)
	// elapsed is 100x the target: naive ratio would crater difficulty far
	// below current/4.
	for i := range blocks {
		blocks[i] = BlockTimestamps{Timestamp: int64(i) * 12000, Difficulty: 40}
	}
	got := NextDifficulty(blocks, p)
	min := uint32(40 / 4)
	if got < min {
		t.Fatalf("clamp violated: got %d, floor is %d", got, min)
	}
}

func TestNextDifficultyClampedByMinMax(t *testing.T) {
	p := baseParams()
	blocks := make([]BlockTimestamps, 11)
	for i := range blocks {
		blocks[i] = BlockTimestamps{Timestamp: int64(i) * 1, Difficulty: 60}
	}
	got := NextDifficulty(blocks, p)
	if got > p.MaxDifficulty {
		t.Fatalf("got %d exceeds MaxDifficulty %d", got, p.MaxDifficulty)
	}
}

func TestNextDifficultyNeverBelowOne(t *testing.T) {
	p := baseParams()
	p.MinDifficulty = 1
	blocks := make([]BlockTimestamps, 11)
	for i := range blocks {
		blocks[i] = BlockTimestamps{Timestamp: int64(i) * 1_000_000, Difficulty: 1}
	}
	got := NextDifficulty(blocks, p)
	if got < 1 {
		t.Fatalf("difficulty must never drop below 1, got %d", got)
	}
}
