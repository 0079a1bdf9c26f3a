package purchase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/govalues/decimal"

	"paycrypt/internal/repo"
)

// Chain describes an EVM network payments are accepted on.
type Chain struct {
	ID   int64
	Name string
}

// DefaultChains are the networks the payment contracts are deployed to.
var DefaultChains = []Chain{
	{ID: 8453, Name: "Base"},
	{ID: 1135, Name: "Lisk"},
	{ID: 42220, Name: "Celo"},
}

// Policy bounds what a purchase request may ask for.
type Policy struct {
	MinAmount       decimal.Decimal
	MaxAmount       decimal.Decimal
	SupportedChains []int64
}

// DefaultPolicy accepts 100 to 50000 Naira on the default chains.
func DefaultPolicy() Policy {
	ids := make([]int64, 0, len(DefaultChains))
	for _, c := range DefaultChains {
		ids = append(ids, c.ID)
	}
	return Policy{
		MinAmount:       decimal.MustParse("100"),
		MaxAmount:       decimal.MustParse("50000"),
		SupportedChains: ids,
	}
}

// Scales match the order columns so stored amounts are never rounded.
const (
	maxAmountScale = 2
	maxCryptoScale = 18
)

// Request is a validated purchase.
type Request struct {
	ServiceType        repo.ServiceType
	RequestID          string
	ServiceID          string
	VariationCode      string
	CustomerIdentifier string
	Phone              string
	Amount             decimal.Decimal
	CryptoUsed         decimal.Decimal
	CryptoSymbol       string
	TransactionHash    string
	UserAddress        string
	ChainID            int64
	ChainName          string
	OnChainStatus      repo.OnChainStatus
}

func (r Request) order() repo.Order {
	return repo.Order{
		RequestID:          r.RequestID,
		UserAddress:        r.UserAddress,
		TransactionHash:    r.TransactionHash,
		ServiceType:        r.ServiceType,
		ServiceID:          r.ServiceID,
		VariationCode:      r.VariationCode,
		CustomerIdentifier: r.CustomerIdentifier,
		Phone:              r.Phone,
		AmountNaira:        r.Amount,
		CryptoUsed:         r.CryptoUsed,
		CryptoSymbol:       r.CryptoSymbol,
		ChainID:            r.ChainID,
		ChainName:          r.ChainName,
		OnChainStatus:      r.OnChainStatus,
		VTpassStatus:       repo.VTpassPending,
	}
}

// flexString accepts a JSON string or a bare number and keeps its text.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

type requiredField struct {
	field string
	value string
}

type payload struct {
	RequestID       flexString `json:"requestId"`
	ServiceID       flexString `json:"serviceID"`
	VariationCode   flexString `json:"variation_code"`
	Phone           flexString `json:"phone"`
	MeterNumber     flexString `json:"meter_number"`
	BillersCode     flexString `json:"billersCode"`
	SmartcardNumber flexString `json:"smartcard_number"`
	Amount          flexString `json:"amount"`
	CryptoUsed      flexString `json:"cryptoUsed"`
	CryptoSymbol    flexString `json:"cryptoSymbol"`
	TransactionHash flexString `json:"transactionHash"`
	UserAddress     flexString `json:"userAddress"`
	ChainID         flexString `json:"chainId"`
	ChainName       flexString `json:"chainName"`
	OnChainStatus   flexString `json:"onChainStatus"`
}

// PeekRequestID returns the requestId of a raw payload, if it has one, so
// error responses can echo it even when the payload fails validation.
func PeekRequestID(raw json.RawMessage) string {
	var p struct {
		RequestID flexString `json:"requestId"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return ""
	}
	return string(p.RequestID)
}

// Validate checks a raw purchase payload for serviceType against policy.
// It never touches the store or the provider.
func Validate(serviceType repo.ServiceType, raw json.RawMessage, policy Policy) (Request, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Request{}, &ValidationError{
			RequestID: PeekRequestID(raw),
			Message:   "request body must be a JSON object with string or numeric fields",
		}
	}

	req := Request{
		ServiceType:     serviceType,
		RequestID:       string(p.RequestID),
		ServiceID:       string(p.ServiceID),
		VariationCode:   string(p.VariationCode),
		Phone:           string(p.Phone),
		CryptoSymbol:    strings.ToUpper(string(p.CryptoSymbol)),
		TransactionHash: strings.ToLower(string(p.TransactionHash)),
		UserAddress:     strings.ToLower(string(p.UserAddress)),
		ChainName:       string(p.ChainName),
	}
	verr := &ValidationError{RequestID: req.RequestID}

	var identifierField string
	needVariation, needPhone := true, true
	switch serviceType {
	case repo.ServiceAirtime:
		identifierField, needVariation, needPhone = "phone", false, false
		req.CustomerIdentifier = req.Phone
	case repo.ServiceInternet:
		identifierField, needPhone = "phone", false
		req.CustomerIdentifier = req.Phone
	case repo.ServiceElectricity:
		identifierField = "meter_number"
		req.CustomerIdentifier = string(p.MeterNumber)
	case repo.ServiceTV:
		identifierField = "billersCode"
		req.CustomerIdentifier = string(p.BillersCode)
		if req.CustomerIdentifier == "" {
			req.CustomerIdentifier = string(p.SmartcardNumber)
		}
	default:
		verr.Message = fmt.Sprintf("unsupported service type %q", serviceType)
		return Request{}, verr
	}

	required := []requiredField{
		{"requestId", req.RequestID},
		{identifierField, req.CustomerIdentifier},
		{"serviceID", req.ServiceID},
		{"amount", string(p.Amount)},
		{"cryptoUsed", string(p.CryptoUsed)},
		{"cryptoSymbol", req.CryptoSymbol},
		{"transactionHash", req.TransactionHash},
		{"userAddress", req.UserAddress},
		{"chainId", string(p.ChainID)},
		{"chainName", req.ChainName},
	}
	if needVariation {
		required = append(required, requiredField{"variation_code", req.VariationCode})
	}
	if needPhone {
		required = append(required, requiredField{"phone", req.Phone})
	}
	for _, r := range required {
		if r.value == "" && !slices.Contains(verr.Fields, r.field) {
			verr.Fields = append(verr.Fields, r.field)
		}
	}
	if len(verr.Fields) > 0 {
		verr.Message = "Missing required fields: " + strings.Join(verr.Fields, ", ")
		return Request{}, verr
	}

	amount, err := decimal.Parse(string(p.Amount))
	switch {
	case err != nil:
		return Request{}, verr.with("amount", "amount must be a number")
	case !amount.IsPos():
		return Request{}, verr.with("amount", "amount must be greater than zero")
	case amount.Trim(0).Scale() > maxAmountScale:
		return Request{}, verr.with("amount", "amount must have at most 2 decimal places")
	case amount.Cmp(policy.MinAmount) < 0 || (!policy.MaxAmount.IsZero() && amount.Cmp(policy.MaxAmount) > 0):
		return Request{}, verr.with("amount", fmt.Sprintf("amount must be between %s and %s", policy.MinAmount, policy.MaxAmount))
	}
	req.Amount = amount

	crypto, err := decimal.Parse(string(p.CryptoUsed))
	if err != nil || !crypto.IsPos() {
		return Request{}, verr.with("cryptoUsed", "cryptoUsed must be a positive number")
	}
	if crypto.Trim(0).Scale() > maxCryptoScale {
		return Request{}, verr.with("cryptoUsed", "cryptoUsed must have at most 18 decimal places")
	}
	req.CryptoUsed = crypto

	chainID, err := strconv.ParseInt(string(p.ChainID), 10, 64)
	if err != nil || chainID <= 0 {
		return Request{}, verr.with("chainId", "chainId must be a positive integer")
	}
	if len(policy.SupportedChains) > 0 && !slices.Contains(policy.SupportedChains, chainID) {
		return Request{}, verr.with("chainId", fmt.Sprintf("chainId %d is not supported", chainID))
	}
	req.ChainID = chainID

	req.OnChainStatus = repo.OnChainConfirmed
	if s := strings.ToLower(string(p.OnChainStatus)); s != "" {
		req.OnChainStatus = repo.OnChainStatus(s)
		if !req.OnChainStatus.Valid() {
			return Request{}, verr.with("onChainStatus", "onChainStatus must be pending, confirmed or failed")
		}
	}

	return req, nil
}
