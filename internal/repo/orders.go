package repo

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
)

// orderColumns is the projection shared by both dialects. Numeric columns are
// read as text so decimals round-trip without float conversion.
const orderColumns = `id, request_id, user_address, transaction_hash, service_type, service_id,
    variation_code, customer_identifier, phone, amount_naira, crypto_used, crypto_symbol,
    chain_id, chain_name, on_chain_status, vtpass_status, vtpass_response, electricity,
    created_at, updated_at`

// prepareInsert normalises a new order and checks the fields the schema needs.
func prepareInsert(order Order, now time.Time) (Order, error) {
	order.RequestID = strings.TrimSpace(order.RequestID)
	order.UserAddress = strings.ToLower(strings.TrimSpace(order.UserAddress))
	order.TransactionHash = strings.ToLower(strings.TrimSpace(order.TransactionHash))
	if order.RequestID == "" || order.TransactionHash == "" || order.UserAddress == "" {
		return order, fmt.Errorf("insert order: request id, transaction hash and user address are required")
	}
	if !order.AmountNaira.IsPos() {
		return order, fmt.Errorf("insert order: amount must be positive")
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.VTpassStatus == "" {
		order.VTpassStatus = VTpassPending
	}
	if order.OnChainStatus == "" {
		order.OnChainStatus = OnChainPending
	}
	if !order.VTpassStatus.Valid() {
		return order, fmt.Errorf("insert order: unknown vtpass status %q", order.VTpassStatus)
	}
	if !order.OnChainStatus.Valid() {
		return order, fmt.Errorf("insert order: unknown on-chain status %q", order.OnChainStatus)
	}
	order.CreatedAt = now.UTC()
	order.UpdatedAt = order.CreatedAt
	return order, nil
}

// orderRow is the raw column set scanned from either dialect.
type orderRow struct {
	ID                 string
	RequestID          string
	UserAddress        string
	TransactionHash    string
	ServiceType        string
	ServiceID          string
	VariationCode      *string
	CustomerIdentifier string
	Phone              *string
	AmountNaira        string
	CryptoUsed         string
	CryptoSymbol       string
	ChainID            *int64
	ChainName          *string
	OnChainStatus      string
	VTpassStatus       string
	VTpassResponse     []byte
	Electricity        []byte
}

func (r *orderRow) dest() []any {
	return []any{
		&r.ID, &r.RequestID, &r.UserAddress, &r.TransactionHash, &r.ServiceType, &r.ServiceID,
		&r.VariationCode, &r.CustomerIdentifier, &r.Phone, &r.AmountNaira, &r.CryptoUsed, &r.CryptoSymbol,
		&r.ChainID, &r.ChainName, &r.OnChainStatus, &r.VTpassStatus, &r.VTpassResponse, &r.Electricity,
	}
}

func (r *orderRow) toOrder(createdAt, updatedAt time.Time) (*Order, error) {
	amount, err := decimal.Parse(strings.TrimSpace(r.AmountNaira))
	if err != nil {
		return nil, fmt.Errorf("parse amount_naira %q: %w", r.AmountNaira, err)
	}
	crypto, err := decimal.Parse(strings.TrimSpace(r.CryptoUsed))
	if err != nil {
		return nil, fmt.Errorf("parse crypto_used %q: %w", r.CryptoUsed, err)
	}
	order := &Order{
		ID:                 r.ID,
		RequestID:          r.RequestID,
		UserAddress:        r.UserAddress,
		TransactionHash:    r.TransactionHash,
		ServiceType:        ServiceType(r.ServiceType),
		ServiceID:          r.ServiceID,
		VariationCode:      deref(r.VariationCode),
		CustomerIdentifier: r.CustomerIdentifier,
		Phone:              deref(r.Phone),
		AmountNaira:        amount,
		CryptoUsed:         crypto,
		CryptoSymbol:       r.CryptoSymbol,
		ChainName:          deref(r.ChainName),
		OnChainStatus:      OnChainStatus(r.OnChainStatus),
		VTpassStatus:       VTpassStatus(r.VTpassStatus),
		VTpassResponse:     fromJSON(r.VTpassResponse),
		CreatedAt:          createdAt.UTC(),
		UpdatedAt:          updatedAt.UTC(),
	}
	if r.ChainID != nil {
		order.ChainID = *r.ChainID
	}
	if len(r.Electricity) > 0 && string(r.Electricity) != "null" {
		var details ElectricityDetails
		if err := json.Unmarshal(r.Electricity, &details); err != nil {
			return nil, fmt.Errorf("decode electricity details: %w", err)
		}
		order.Electricity = &details
	}
	return order, nil
}

// insertArgs returns the values for an INSERT in orderColumns order.
func insertArgs(order Order, createdAt, updatedAt any) ([]any, error) {
	resp, err := toJSON(order.VTpassResponse)
	if err != nil {
		return nil, err
	}
	elec, err := electricityJSON(order.Electricity)
	if err != nil {
		return nil, err
	}
	var chainID any
	if order.ChainID != 0 {
		chainID = order.ChainID
	}
	return []any{
		order.ID,
		order.RequestID,
		order.UserAddress,
		order.TransactionHash,
		string(order.ServiceType),
		order.ServiceID,
		nullString(order.VariationCode),
		order.CustomerIdentifier,
		nullString(order.Phone),
		order.AmountNaira.String(),
		order.CryptoUsed.String(),
		order.CryptoSymbol,
		chainID,
		nullString(order.ChainName),
		string(order.OnChainStatus),
		string(order.VTpassStatus),
		jsonParam(resp),
		jsonParam(elec),
		createdAt,
		updatedAt,
	}, nil
}

// placeholder renders the n-th (1-based) bind parameter for a dialect.
type placeholder func(n int) string

func dollarPlaceholder(n int) string   { return fmt.Sprintf("$%d", n) }
func questionPlaceholder(_ int) string { return "?" }

// whereClause builds the WHERE clause and arguments for a listing filter.
func whereClause(f ListFilter, ph placeholder, timeArg func(time.Time) any) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, ph(len(args))))
	}
	if f.UserAddress != "" {
		add("user_address = %s", f.UserAddress)
	}
	if f.ChainID != 0 {
		add("chain_id = %s", f.ChainID)
	}
	if f.ServiceType != "" {
		add("service_type = %s", string(f.ServiceType))
	}
	if f.VTpassStatus != "" {
		add("vtpass_status = %s", string(f.VTpassStatus))
	}
	if !f.CreatedFrom.IsZero() {
		add("created_at >= %s", timeArg(f.CreatedFrom.UTC()))
	}
	if !f.CreatedTo.IsZero() {
		add("created_at < %s", timeArg(f.CreatedTo.UTC()))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// statusIn renders an IN list for the statuses a transition may start from,
// numbering placeholders after `offset` existing arguments.
func statusIn(statuses []VTpassStatus, ph placeholder, offset int) (string, []any) {
	parts := make([]string, 0, len(statuses))
	args := make([]any, 0, len(statuses))
	for i, s := range statuses {
		parts = append(parts, ph(offset+i+1))
		args = append(args, string(s))
	}
	return "(" + strings.Join(parts, ", ") + ")", args
}

func toJSON(val map[string]any) ([]byte, error) {
	if val == nil {
		return nil, nil
	}
	data, err := json.Marshal(val)
	if err != nil {
		return nil, fmt.Errorf("marshal vtpass response: %w", err)
	}
	return data, nil
}

func electricityJSON(details *ElectricityDetails) ([]byte, error) {
	if details == nil {
		return nil, nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal electricity details: %w", err)
	}
	return data, nil
}

func fromJSON(data []byte) map[string]any {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"_raw": string(data)}
	}
	return m
}

func jsonParam(data []byte) any {
	if data == nil {
		return nil
	}
	return string(data)
}

func nullString(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func deref(val *string) string {
	if val == nil {
		return ""
	}
	return *val
}
