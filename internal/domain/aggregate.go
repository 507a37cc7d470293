package domain

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrChunkAlreadyMerged is returned when a chunk's outcomes were already
	// added to the aggregate. The aggregate is left untouched.
	ErrChunkAlreadyMerged = errors.New("chunk already merged")
	// ErrAggregateFinal is returned when merging into a finalized aggregate.
	ErrAggregateFinal = errors.New("aggregate is final")
)

// AggregateResult is the running tally of a job across all of its chunks.
// Merging is additive: counts add and failed addresses are appended in the
// order chunks are merged. Each chunk index can be merged once.
type AggregateResult struct {
	SentCount       uint     `json:"sent"`
	FailedCount     uint     `json:"failed"`
	FailedAddresses []string `json:"failed_emails"`
	MergedChunks    []int    `json:"merged_chunks"`
	Final           bool     `json:"final"`
}

// NewAggregateResult returns an empty accumulator.
func NewAggregateResult() *AggregateResult {
	return &AggregateResult{
		FailedAddresses: []string{},
		MergedChunks:    []int{},
	}
}

// HasMerged reports whether the chunk index was already merged.
func (a *AggregateResult) HasMerged(chunkIndex int) bool {
	for _, idx := range a.MergedChunks {
		if idx == chunkIndex {
			return true
		}
	}
	return false
}

// Merge adds the outcomes of one chunk.
func (a *AggregateResult) Merge(chunkIndex int, outcomes []SendOutcome) error {
	if a.Final {
		return ErrAggregateFinal
	}
	if chunkIndex < 0 {
		return fmt.Errorf("invalid chunk index %d", chunkIndex)
	}
	if a.HasMerged(chunkIndex) {
		return fmt.Errorf("chunk %d: %w", chunkIndex, ErrChunkAlreadyMerged)
	}

	for _, o := range outcomes {
		if o.Failed() {
			a.FailedCount++
			a.FailedAddresses = append(a.FailedAddresses, o.Email)
		} else {
			a.SentCount++
		}
	}
	a.MergedChunks = append(a.MergedChunks, chunkIndex)
	return nil
}

// Finalize marks the aggregate read-only.
func (a *AggregateResult) Finalize() { a.Final = true }

// Processed returns sent + failed.
func (a *AggregateResult) Processed() uint { return a.SentCount + a.FailedCount }

// Consistent checks the post-merge invariants against the recipient total.
func (a *AggregateResult) Consistent(total int) bool {
	return int(a.Processed()) == total && uint(len(a.FailedAddresses)) == a.FailedCount
}

// Complete reports whether every chunk index in [0, totalChunks) was merged.
func (a *AggregateResult) Complete(totalChunks int) bool {
	if len(a.MergedChunks) != totalChunks {
		return false
	}
	seen := make([]int, len(a.MergedChunks))
	copy(seen, a.MergedChunks)
	sort.Ints(seen)
	for i, idx := range seen {
		if idx != i {
			return false
		}
	}
	return true
}
