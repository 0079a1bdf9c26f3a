package vtpass

import (
	"strings"
	"time"
)

// TokenDetails is the prepaid meter data VTpass returns for a successful
// electricity purchase. Field spellings vary between discos.
type TokenDetails struct {
	Token           string
	Units           string
	Tariff          string
	KCT1            string
	KCT2            string
	PurchasedCode   string
	CustomerName    string
	CustomerAddress string
	MeterNumber     string
	Amount          string
	TransactionDate time.Time
}

var transactionDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.000000",
	time.DateTime,
}

// TokenDetails extracts electricity fields from the purchase response.
func (r *PurchaseResult) TokenDetails() TokenDetails {
	data := r.Data
	if data == nil {
		return TokenDetails{}
	}
	txn := extractNested(extractNested(data, "content"), "transactions")

	d := TokenDetails{
		Token:           firstString(data, "token", "Token", "mainToken"),
		Units:           firstString(data, "units", "Units", "mainTokenUnits"),
		Tariff:          firstString(data, "tariff", "Tariff", "tariffIndex"),
		KCT1:            firstString(data, "kct1", "KCT1"),
		KCT2:            firstString(data, "kct2", "KCT2"),
		PurchasedCode:   firstString(data, "purchased_code", "purchasedCode"),
		CustomerName:    firstString(data, "customerName", "CustomerName"),
		CustomerAddress: firstString(data, "customerAddress", "address", "Address"),
		MeterNumber:     firstString(data, "meterNumber", "MeterNumber"),
		Amount:          firstString(data, "amount"),
	}
	if d.Amount == "" && txn != nil {
		d.Amount = firstString(txn, "amount", "unit_price")
	}
	if d.Token == "" && d.PurchasedCode != "" {
		d.Token = tokenFromPurchasedCode(d.PurchasedCode)
	}
	d.TransactionDate = transactionDate(data)
	return d
}

// tokenFromPurchasedCode turns "Token : 1234 5678" into "1234 5678".
func tokenFromPurchasedCode(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.Index(code, ":"); i >= 0 && strings.EqualFold(strings.TrimSpace(code[:i]), "token") {
		return strings.TrimSpace(code[i+1:])
	}
	return code
}

func transactionDate(data map[string]any) time.Time {
	raw := firstString(data, "transaction_date")
	if raw == "" {
		// Older responses nest it as {"date": "..."}.
		raw = firstString(extractNested(data, "transaction_date"), "date")
	}
	for _, layout := range transactionDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
