package listener

// BlockEvent is emitted for every confirmed block, in order, without gaps.
// Reorganized is set when the block's parent hash does not match the hash of
// the previously emitted block, i.e. the chain below the confirmation depth
// got rewritten. ExpectedParentHash then carries the hash we saw before.
type BlockEvent struct {
	Number             int64
	Hash               string
	ParentHash         string
	Reorganized        bool
	ExpectedParentHash string
	Timestamp          int64
}
