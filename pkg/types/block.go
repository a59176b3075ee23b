package types

// BlockHeader is emitted by the batch verifier after a batch is applied.
type BlockHeader struct {
	// PrevRoots are the state roots before the batch.
	PrevRoots StateRoots

	// NewRoots are the state roots after the batch.
	NewRoots StateRoots

	// BatchID is the monotonically increasing batch sequence number.
	BatchID uint64

	// AggProof is an opaque digest over the batch contents. It is a pure
	// function of the batch: same transactions, same digest.
	AggProof []byte

	// Timestamp is the batch close time in seconds.
	Timestamp Time
}
