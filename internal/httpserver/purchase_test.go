package httpserver

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paycrypt/internal/repo"
	"paycrypt/internal/vtpass"
)

func TestPurchaseAirtimeAndReplay(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec, body := env.do(t, http.MethodPost, "/api/airtime", airtimePayload("req-1", "0xaaa"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "req-1", body["requestId"])
	assert.NotEmpty(t, body["orderId"])
	assert.Equal(t, "Airtime purchased successfully!", body["message"])
	assert.NotNil(t, body["vtpassData"])
	order := body["order"].(map[string]any)
	assert.Equal(t, "successful", order["vtpassStatus"])

	rec, replay := env.do(t, http.MethodPost, "/api/airtime", airtimePayload("req-1", "0xaaa"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, replay["replayed"])
	assert.Equal(t, body["orderId"], replay["orderId"])
	assert.Equal(t, "Order already processed successfully", replay["message"])
	assert.Equal(t, int32(1), env.fulfiller.calls.Load())
}

func TestPurchaseValidationError(t *testing.T) {
	env := newTestEnv(t, Options{ExposeErrorDetails: true})

	rec, body := env.do(t, http.MethodPost, "/api/electricity", airtimePayload("req-bad", "0xbad"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "req-bad", body["requestId"])
	assert.Contains(t, body["error"], "Missing required fields")
	assert.ElementsMatch(t, []any{"meter_number", "variation_code"}, body["fields"])
	assert.Nil(t, body["details"])
	assert.Zero(t, env.fulfiller.calls.Load())

	rec, body = env.do(t, http.MethodPost, "/api/airtime", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", body["status"])
}

func TestPurchaseDeclinedThenConflict(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.fulfiller.fn = func(vtpass.PurchaseParams) (*vtpass.PurchaseResult, error) {
		return &vtpass.PurchaseResult{
			Code:        "016",
			Description: "TRANSACTION FAILED",
			Data:        map[string]any{"code": "016", "response_description": "TRANSACTION FAILED"},
		}, nil
	}

	rec, body := env.do(t, http.MethodPost, "/api/airtime", airtimePayload("req-2", "0xbbb"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "TRANSACTION FAILED", body["error"])
	assert.Equal(t, "req-2", body["requestId"])
	assert.Nil(t, body["details"])

	rec, body = env.do(t, http.MethodPost, "/api/airtime", airtimePayload("req-2", "0xbbb"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, body["error"], "Current status: failed")
	assert.Equal(t, int32(1), env.fulfiller.calls.Load())
}

func TestPurchaseSuccessfulButUnconfirmedConflicts(t *testing.T) {
	env := newTestEnv(t, Options{})
	payload := strings.Replace(airtimePayload("req-unconfirmed", "0xddd"), `"chainName": "Base"`, `"chainName": "Base", "onChainStatus": "pending"`, 1)

	rec, body := env.do(t, http.MethodPost, "/api/airtime", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	order := body["order"].(map[string]any)
	assert.Equal(t, "pending", order["onChainStatus"])

	rec, body = env.do(t, http.MethodPost, "/api/airtime", payload)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Order with this Request ID already exists. Current status: successful", body["error"])
	assert.Equal(t, "req-unconfirmed", body["requestId"])
	assert.Equal(t, int32(1), env.fulfiller.calls.Load())
}

func TestPurchaseRejectsSubKoboAmount(t *testing.T) {
	env := newTestEnv(t, Options{})
	payload := strings.Replace(airtimePayload("req-kobo", "0xeee"), `"amount": 100`, `"amount": "100.005"`, 1)

	rec, body := env.do(t, http.MethodPost, "/api/airtime", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []any{"amount"}, body["fields"])
	assert.Zero(t, env.fulfiller.calls.Load())
}

func TestPurchaseTransportFailureDetails(t *testing.T) {
	tests := []struct {
		name   string
		expose bool
	}{
		{"production hides details", false},
		{"development shows details", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Options{ExposeErrorDetails: tt.expose})
			env.fulfiller.fn = func(vtpass.PurchaseParams) (*vtpass.PurchaseResult, error) {
				return nil, fmt.Errorf("%w: dial tcp: connection refused", vtpass.ErrTransport)
			}

			rec, body := env.do(t, http.MethodPost, "/api/airtime", airtimePayload("req-3", "0xccc"))
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Contains(t, body["error"], "Failed to communicate with VTpass")
			assert.Equal(t, "req-3", body["requestId"])

			if !tt.expose {
				assert.Nil(t, body["details"])
				return
			}
			details := body["details"].(map[string]any)
			assert.Equal(t, "transport", details["kind"])
			assert.Contains(t, details["cause"], "connection refused")

			stored, err := env.store.FindOrderByRequestID(t.Context(), "req-3")
			require.NoError(t, err)
			assert.Equal(t, repo.VTpassFailedAPICall, stored.VTpassStatus)
		})
	}
}

func TestPurchaseDataAlias(t *testing.T) {
	env := newTestEnv(t, Options{})
	payload := `{"requestId":"req-data","serviceID":"mtn-data","variation_code":"mtn-10mb-100","phone":"08011111111",
		"amount":"100","cryptoUsed":"0.07","cryptoSymbol":"cusd","transactionHash":"0xdata","userAddress":"0xuser",
		"chainId":"42220","chainName":"Celo"}`

	rec, body := env.do(t, http.MethodPost, "/api/data", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Internet data purchased successfully!", body["message"])

	stored, err := env.store.FindOrderByRequestID(t.Context(), "req-data")
	require.NoError(t, err)
	assert.Equal(t, repo.ServiceInternet, stored.ServiceType)
	assert.Equal(t, "CUSD", stored.CryptoSymbol)
}

func TestPurchaseElectricityReturnsToken(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.fulfiller.fn = func(params vtpass.PurchaseParams) (*vtpass.PurchaseResult, error) {
		assert.Equal(t, "45012345678", params.BillersCode)
		return &vtpass.PurchaseResult{
			Success: true,
			Code:    "000",
			Data: map[string]any{
				"code":           "000",
				"purchased_code": "Token : 1234-5678-9012",
				"units":          "12.5 kWh",
				"amount":         "5000",
			},
		}, nil
	}
	payload := `{"requestId":"req-elec","serviceID":"ikeja-electric","meter_number":"45012345678",
		"variation_code":"prepaid","phone":"08011111111","amount":5000,"cryptoUsed":"3.3",
		"cryptoSymbol":"USDC","transactionHash":"0xelec","userAddress":"0xuser","chainId":8453,"chainName":"Base"}`

	rec, body := env.do(t, http.MethodPost, "/api/electricity", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	details := body["details"].(map[string]any)
	assert.Equal(t, "1234-5678-9012", details["token"])
	assert.Equal(t, "12.5 kWh", details["units"])
	assert.Equal(t, "5000", details["amount"])
}
