package domain

// Batch size bounds for a send job.
const (
	MinBatchSize = 1
	MaxBatchSize = 500
)

// Chunk is a contiguous, ordered slice of a job's recipients processed as one step.
type Chunk struct {
	Index      int      `json:"index"`
	Recipients []string `json:"recipients"`
}

// Len returns the number of recipients in the chunk.
func (c Chunk) Len() int { return len(c.Recipients) }
