package generator

import (
	"fmt"

	"WalletGen/internal/wallet"
)

// BatchAbortedError is returned when a batch stops early. Records holds the
// contiguous index prefix finished before the failure (nil for Stream, whose
// records already went to the sink).
type BatchAbortedError struct {
	Records   []*wallet.Record
	Completed int
	Total     int
	Cause     error
}

func (e *BatchAbortedError) Error() string {
	return fmt.Sprintf("batch aborted after %d of %d wallets: %v", e.Completed, e.Total, e.Cause)
}

func (e *BatchAbortedError) Unwrap() error { return e.Cause }
