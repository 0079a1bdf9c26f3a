package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrNotFound is returned when no order matches the lookup key.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateKey is returned when an insert collides with an existing
	// request ID or transaction hash.
	ErrDuplicateKey = errors.New("duplicate order key")
	// ErrInvalidTransition is returned when an update would move an order's
	// fulfilment status backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// DuplicateKeyError names the unique key an insert collided with.
type DuplicateKeyError struct {
	Key string
}

func (e *DuplicateKeyError) Error() string {
	if e.Key == "" {
		return ErrDuplicateKey.Error()
	}
	return fmt.Sprintf("%s: %s", ErrDuplicateKey.Error(), e.Key)
}

func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}

const (
	KeyRequestID       = "request_id"
	KeyTransactionHash = "transaction_hash"
)

// TransitionError reports the rejected status change.
type TransitionError struct {
	RequestID string
	From      VTpassStatus
	To        VTpassStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot move %s -> %s", e.RequestID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Store defines order persistence. Uniqueness of request IDs and transaction
// hashes is enforced by the implementation, atomically with the insert.
type Store interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Orders
	CreateOrder(ctx context.Context, order Order) (*Order, error)
	FindOrderByRequestID(ctx context.Context, requestID string) (*Order, error)
	FindOrderByTransactionHash(ctx context.Context, txHash string) (*Order, error)
	UpdateOrder(ctx context.Context, requestID string, patch OrderPatch) (*Order, error)
	ListOrdersByUser(ctx context.Context, userAddress string, filter ListFilter) (*Page, error)
	ListOrders(ctx context.Context, filter ListFilter) (*Page, error)

	// Maintenance
	BackfillChainInfo(ctx context.Context, params BackfillParams) (int64, error)
}
