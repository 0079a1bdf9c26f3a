package purchase

import (
	"fmt"
	"strings"

	"paycrypt/internal/repo"
)

// ValidationError reports a purchase payload rejected before any side effect.
type ValidationError struct {
	RequestID string
	Fields    []string
	Message   string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "invalid purchase request: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) with(field, msg string) *ValidationError {
	e.Fields = append(e.Fields, field)
	e.Message = msg
	return e
}

// ConflictError is returned when the requestId or transaction hash already
// belongs to an order that cannot be replayed.
type ConflictError struct {
	RequestID string
	Status    repo.VTpassStatus
	// TransactionHash is set when the hash, not the requestId, collided.
	TransactionHash string
}

func (e *ConflictError) Error() string {
	if e.TransactionHash != "" {
		return fmt.Sprintf("Transaction hash %s has already been used for another order", e.TransactionHash)
	}
	return fmt.Sprintf("Order with this Request ID already exists. Current status: %s", e.Status)
}

// Kind classifies a fulfilment failure.
type Kind string

const (
	// KindTransport: VTpass was unreachable, timed out or sent a non-JSON body.
	KindTransport Kind = "transport"
	// KindDeclined: VTpass answered and refused the purchase.
	KindDeclined Kind = "declined"
	// KindMalformed: VTpass answered without a response code.
	KindMalformed Kind = "malformed"
)

// FulfillmentError is returned after the order has been moved to a failed
// status. StoreErr is set when recording that status also failed.
type FulfillmentError struct {
	Kind        Kind
	RequestID   string
	ServiceType repo.ServiceType
	Reason      string
	Err         error
	StoreErr    error
	Order       *repo.Order
}

func (e *FulfillmentError) Error() string {
	switch e.Kind {
	case KindTransport:
		return fmt.Sprintf("Failed to communicate with VTpass for %s purchase. Request ID: %s", e.ServiceType, e.RequestID)
	case KindMalformed:
		return fmt.Sprintf("VTpass returned an unreadable response. Please contact support with Request ID: %s", e.RequestID)
	default:
		if e.Reason != "" {
			return e.Reason
		}
		return fmt.Sprintf("Failed to purchase %s via VTpass.", e.ServiceType)
	}
}

func (e *FulfillmentError) Unwrap() error {
	return e.Err
}

// Status is the order status the failure maps to.
func (e *FulfillmentError) Status() repo.VTpassStatus {
	switch e.Kind {
	case KindTransport:
		return repo.VTpassFailedAPICall
	case KindMalformed:
		return repo.VTpassFailedMalformed
	default:
		return repo.VTpassFailed
	}
}

// UnrecordedChargeError means VTpass accepted the purchase but the order
// could not be marked successful. The customer has been served; the record
// needs manual correction.
type UnrecordedChargeError struct {
	RequestID string
	Err       error
}

func (e *UnrecordedChargeError) Error() string {
	return fmt.Sprintf("Purchase completed with VTpass but the order record could not be updated. Please contact support with Request ID: %s", e.RequestID)
}

func (e *UnrecordedChargeError) Unwrap() error {
	return e.Err
}

// StoreError wraps a persistence failure that happened before any charge.
// Callers may retry with the same requestId.
type StoreError struct {
	Op        string
	RequestID string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s order %s: %v", e.Op, e.RequestID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
