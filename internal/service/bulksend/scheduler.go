package bulksend

import "github.com/ignite/bulk-mailer/internal/domain"

// ValidBatchSize reports whether size is within [MinBatchSize, MaxBatchSize].
func ValidBatchSize(size int) bool {
	return size >= domain.MinBatchSize && size <= domain.MaxBatchSize
}

// ChunkCount returns ceil(n / batchSize).
func ChunkCount(n, batchSize int) int {
	if n <= 0 || batchSize <= 0 {
		return 0
	}
	return (n + batchSize - 1) / batchSize
}

// Schedule splits recipients into contiguous chunks of batchSize, the last
// one possibly shorter. Concatenating the chunks in index order yields the
// input unchanged.
func Schedule(recipients []string, batchSize int) ([]domain.Chunk, error) {
	if !ValidBatchSize(batchSize) {
		return nil, ErrInvalidBatchSize
	}
	n := ChunkCount(len(recipients), batchSize)
	chunks := make([]domain.Chunk, 0, n)
	for i := 0; i < n; i++ {
		c, _ := ChunkAt(recipients, batchSize, i)
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// ChunkAt returns chunk index of the schedule without building the others.
// The returned chunk shares the recipients' backing array.
func ChunkAt(recipients []string, batchSize, index int) (domain.Chunk, error) {
	if !ValidBatchSize(batchSize) {
		return domain.Chunk{}, ErrInvalidBatchSize
	}
	if index < 0 || index >= ChunkCount(len(recipients), batchSize) {
		return domain.Chunk{}, ErrInvalidStep
	}
	start := index * batchSize
	end := start + batchSize
	if end > len(recipients) {
		end = len(recipients)
	}
	return domain.Chunk{Index: index, Recipients: recipients[start:end:end]}, nil
}
