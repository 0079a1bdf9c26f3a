package repo

import (
	"strings"
	"time"

	"github.com/govalues/decimal"
)

// ServiceType identifies the utility being purchased.
type ServiceType string

const (
	ServiceAirtime     ServiceType = "airtime"
	ServiceInternet    ServiceType = "internet"
	ServiceElectricity ServiceType = "electricity"
	ServiceTV          ServiceType = "tv"
)

// ParseServiceType maps a route or payload value to a ServiceType. "data" is
// accepted as an alias of internet.
func ParseServiceType(val string) (ServiceType, bool) {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "airtime":
		return ServiceAirtime, true
	case "internet", "data":
		return ServiceInternet, true
	case "electricity":
		return ServiceElectricity, true
	case "tv", "cable":
		return ServiceTV, true
	default:
		return "", false
	}
}

// OnChainStatus is the caller's assertion about the crypto payment.
type OnChainStatus string

const (
	OnChainPending   OnChainStatus = "pending"
	OnChainConfirmed OnChainStatus = "confirmed"
	OnChainFailed    OnChainStatus = "failed"
)

// Valid reports whether s is a known on-chain status.
func (s OnChainStatus) Valid() bool {
	switch s {
	case OnChainPending, OnChainConfirmed, OnChainFailed:
		return true
	}
	return false
}

// VTpassStatus is the fulfilment state of an order.
type VTpassStatus string

const (
	VTpassPending         VTpassStatus = "pending"
	VTpassSuccessful      VTpassStatus = "successful"
	VTpassFailed          VTpassStatus = "failed"
	VTpassFailedAPICall   VTpassStatus = "failed_api_call"
	VTpassFailedMalformed VTpassStatus = "failed_malformed_response"
	VTpassRefunded        VTpassStatus = "refunded"
)

// Valid reports whether s is a known fulfilment status.
func (s VTpassStatus) Valid() bool {
	switch s {
	case VTpassPending, VTpassSuccessful, VTpassFailed, VTpassFailedAPICall, VTpassFailedMalformed, VTpassRefunded:
		return true
	}
	return false
}

// allowedFrom lists the statuses an order may be in for a write to `to` to be
// accepted. Status only moves forward: pending to a terminal outcome, and a
// failed outcome to refunded.
func allowedFrom(to VTpassStatus) []VTpassStatus {
	switch to {
	case VTpassSuccessful, VTpassFailed, VTpassFailedAPICall, VTpassFailedMalformed:
		return []VTpassStatus{VTpassPending}
	case VTpassRefunded:
		return []VTpassStatus{VTpassFailed, VTpassFailedAPICall, VTpassFailedMalformed}
	default:
		return nil
	}
}

// ElectricityDetails holds the token data returned for a successful
// electricity purchase.
type ElectricityDetails struct {
	Token           string     `json:"token,omitempty"`
	Units           string     `json:"units,omitempty"`
	Tariff          string     `json:"tariff,omitempty"`
	MeterType       string     `json:"meterType,omitempty"`
	KCT1            string     `json:"kct1,omitempty"`
	KCT2            string     `json:"kct2,omitempty"`
	PurchasedCode   string     `json:"purchasedCode,omitempty"`
	CustomerName    string     `json:"customerName,omitempty"`
	CustomerAddress string     `json:"customerAddress,omitempty"`
	MeterNumber     string     `json:"meterNumber,omitempty"`
	Amount          string     `json:"amount,omitempty"`
	TransactionDate *time.Time `json:"transactionDate,omitempty"`
}

// Order represents a row in the orders table.
type Order struct {
	ID                 string              `json:"id"`
	RequestID          string              `json:"requestId"`
	UserAddress        string              `json:"userAddress"`
	TransactionHash    string              `json:"transactionHash"`
	ServiceType        ServiceType         `json:"serviceType"`
	ServiceID          string              `json:"serviceID"`
	VariationCode      string              `json:"variationCode,omitempty"`
	CustomerIdentifier string              `json:"customerIdentifier"`
	Phone              string              `json:"phone,omitempty"`
	AmountNaira        decimal.Decimal     `json:"amountNaira"`
	CryptoUsed         decimal.Decimal     `json:"cryptoUsed"`
	CryptoSymbol       string              `json:"cryptoSymbol"`
	ChainID            int64               `json:"chainId,omitempty"`
	ChainName          string              `json:"chainName,omitempty"`
	OnChainStatus      OnChainStatus       `json:"onChainStatus"`
	VTpassStatus       VTpassStatus        `json:"vtpassStatus"`
	VTpassResponse     map[string]any      `json:"vtpassResponse,omitempty"`
	Electricity        *ElectricityDetails `json:"electricity,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

// OrderPatch carries the fields the reconciliation engine may change.
type OrderPatch struct {
	VTpassStatus   VTpassStatus
	VTpassResponse map[string]any
	Electricity    *ElectricityDetails
}

// ListFilter narrows paged order listings.
type ListFilter struct {
	UserAddress  string
	ChainID      int64
	ServiceType  ServiceType
	VTpassStatus VTpassStatus
	CreatedFrom  time.Time
	CreatedTo    time.Time
	SortBy       string
	Ascending    bool
	Page         int
	Limit        int
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

func (f ListFilter) normalised() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	f.UserAddress = strings.ToLower(strings.TrimSpace(f.UserAddress))
	return f
}

func (f ListFilter) offset() int {
	return (f.Page - 1) * f.Limit
}

// Page is one page of an order listing.
type Page struct {
	Orders []Order `json:"orders"`
	Page   int     `json:"page"`
	Limit  int     `json:"limit"`
	Total  int64   `json:"total"`
}

// Pages returns the number of pages available for the listing.
func (p Page) Pages() int {
	if p.Limit <= 0 {
		return 0
	}
	return int((p.Total + int64(p.Limit) - 1) / int64(p.Limit))
}

// BackfillParams configures the chain-info backfill for legacy orders.
type BackfillParams struct {
	Cutoff    time.Time
	ChainID   int64
	ChainName string
	DryRun    bool
}
