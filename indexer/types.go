package indexer

type BlocksRange struct {
	From uint
	To   uint
}

// SplitBlockRange splits the inclusive range [fromBlock, toBlock] into
// consecutive sub-ranges of at most maxSize blocks.
func SplitBlockRange(fromBlock uint, toBlock uint, maxSize uint) []*BlocksRange {
	batches := make([]*BlocksRange, 0, 10)
	for fromBlock <= toBlock {
		batchToBlock := fromBlock + maxSize - 1
		if batchToBlock > toBlock {
			batchToBlock = toBlock
		}
		batches = append(batches, &BlocksRange{
			From: fromBlock,
			To:   batchToBlock,
		})
		fromBlock += maxSize
	}
	return batches
}

// SplitScanRange produces the chunks of a historical pass. Every chunk is
// [from, min(from+chunkSize, latest)] and the pass stops once from reaches
// latest, so the head block itself is left to the live subscription.
func SplitScanRange(fromBlock uint, latest uint, chunkSize uint) []*BlocksRange {
	batches := make([]*BlocksRange, 0, 10)
	for fromBlock < latest {
		toBlock := fromBlock + chunkSize
		if toBlock > latest {
			toBlock = latest
		}
		batches = append(batches, &BlocksRange{
			From: fromBlock,
			To:   toBlock,
		})
		fromBlock = toBlock + 1
	}
	return batches
}

func uintPtr(v uint) *uint {
	return &v
}
