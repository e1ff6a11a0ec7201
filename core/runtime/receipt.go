package runtime

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"lukechampine.com/blake3"

	"treasury/core/types"
	"treasury/crypto"
)

// Receipt status values.
const (
	StatusCommitted = "committed"
	StatusFailed    = "failed"
)

// Receipt describes one atomic unit run by the host: the invocation, every
// operation delivered on its behalf and the events it committed.
type Receipt struct {
	ID         string            `json:"id"`
	Controller string            `json:"controller,omitempty"`
	Target     crypto.Address    `json:"target"`
	Entrypoint string            `json:"entrypoint"`
	Sender     crypto.Address    `json:"sender"`
	Status     string            `json:"status"`
	Code       uint16            `json:"code,omitempty"`
	Error      string            `json:"error,omitempty"`
	Operations []types.Operation `json:"operations"`
	Events     []*types.Event    `json:"events"`
	Digest     string            `json:"digest"`
	StartedAt  time.Time         `json:"startedAt"`
	Duration   time.Duration     `json:"duration"`
}

// Committed reports whether the receipt's writes were persisted.
func (r *Receipt) Committed() bool {
	return r != nil && r.Status == StatusCommitted
}

// Observer receives every receipt after the host finishes a unit. Observers
// run outside the host lock, so later units may start before one returns.
type Observer interface {
	ObserveReceipt(ctx context.Context, receipt *Receipt)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, receipt *Receipt)

// ObserveReceipt implements Observer.
func (f ObserverFunc) ObserveReceipt(ctx context.Context, receipt *Receipt) { f(ctx, receipt) }

// OperationsDigest hashes the JSON encoding of the delivered operations. Two
// runs that emit the same batch produce the same digest.
func OperationsDigest(ops []types.Operation) (string, error) {
	if ops == nil {
		ops = []types.Operation{}
	}
	encoded, err := json.Marshal(ops)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}
