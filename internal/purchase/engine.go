package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"paycrypt/internal/metrics"
	"paycrypt/internal/repo"
	"paycrypt/internal/vtpass"
)

const (
	defaultFulfillmentTimeout = 45 * time.Second
	reconcileTimeout          = 10 * time.Second
)

// Fulfiller submits a purchase to the billing provider. *vtpass.Client
// satisfies it.
type Fulfiller interface {
	Purchase(ctx context.Context, params vtpass.PurchaseParams) (*vtpass.PurchaseResult, error)
}

// Config tunes the engine.
type Config struct {
	Policy             Policy
	FulfillmentTimeout time.Duration
}

// Engine reconciles purchase requests against the order store and the
// fulfilment provider.
type Engine struct {
	store     repo.Store
	fulfiller Fulfiller
	policy    Policy
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewEngine wires an engine. m may be nil.
func NewEngine(store repo.Store, fulfiller Fulfiller, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Engine {
	timeout := cfg.FulfillmentTimeout
	if timeout <= 0 {
		timeout = defaultFulfillmentTimeout
	}
	return &Engine{
		store:     store,
		fulfiller: fulfiller,
		policy:    cfg.Policy,
		timeout:   timeout,
		logger:    logger.With("component", "purchase"),
		metrics:   m,
		now:       time.Now,
	}
}

// Outcome is the result of a successful or replayed submission.
type Outcome struct {
	Order    *repo.Order
	Replayed bool
	Message  string
}

var successMessages = map[repo.ServiceType]string{
	repo.ServiceAirtime:     "Airtime purchased successfully!",
	repo.ServiceInternet:    "Internet data purchased successfully!",
	repo.ServiceElectricity: "Electricity bill paid successfully!",
	repo.ServiceTV:          "TV subscription paid successfully!",
}

const replayMessage = "Order already processed successfully"

// SubmitPurchase validates payload and runs it through Submit.
func (e *Engine) SubmitPurchase(ctx context.Context, serviceType repo.ServiceType, payload json.RawMessage) (*Outcome, error) {
	req, err := Validate(serviceType, payload, e.policy)
	if err != nil {
		e.count(serviceType, "invalid")
		return nil, err
	}
	return e.Submit(ctx, req)
}

// Submit claims the order for req and calls the provider at most once.
// Resubmitting a successful, confirmed order returns it unchanged.
func (e *Engine) Submit(ctx context.Context, req Request) (*Outcome, error) {
	logger := e.logger.With("request_id", req.RequestID, "service", string(req.ServiceType))

	existing, err := e.store.FindOrderByRequestID(ctx, req.RequestID)
	switch {
	case err == nil:
		return e.resolveExisting(req, existing)
	case !errors.Is(err, repo.ErrNotFound):
		e.count(req.ServiceType, "store_error")
		return nil, &StoreError{Op: "lookup", RequestID: req.RequestID, Err: err}
	}

	order, err := e.store.CreateOrder(ctx, req.order())
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateKey) {
			logger.Info("lost create race, reading existing order", "error", err)
			return e.afterDuplicate(ctx, req, err)
		}
		e.count(req.ServiceType, "store_error")
		logger.Error("create order failed", "error", err)
		return nil, &StoreError{Op: "create", RequestID: req.RequestID, Err: err}
	}
	logger.Info("order created", "order_id", order.ID, "amount", order.AmountNaira.String())

	// The order is claimed; finish even if the caller goes away.
	detached := context.WithoutCancel(ctx)
	fctx, cancel := context.WithTimeout(detached, e.timeout)
	res, callErr := e.fulfiller.Purchase(fctx, req.purchaseParams())
	cancel()

	rctx, rcancel := context.WithTimeout(detached, reconcileTimeout)
	defer rcancel()

	switch {
	case callErr != nil:
		logger.Error("vtpass call failed", "error", callErr)
		return nil, e.fail(rctx, logger, req, &FulfillmentError{
			Kind: KindTransport, Err: callErr,
		}, map[string]any{"message": "VTpass API call failed: " + callErr.Error()})
	case res == nil || res.Malformed():
		var raw map[string]any
		if res != nil {
			raw = res.Data
		}
		logger.Error("vtpass response has no code", "response", raw)
		return nil, e.fail(rctx, logger, req, &FulfillmentError{
			Kind: KindMalformed,
		}, map[string]any{"message": "Malformed VTpass response", "rawResponse": raw})
	case !res.Success:
		logger.Warn("vtpass declined purchase", "code", res.Code, "reason", res.Description)
		data := res.Data
		if data == nil {
			data = map[string]any{"message": res.Description}
		}
		return nil, e.fail(rctx, logger, req, &FulfillmentError{
			Kind: KindDeclined, Reason: res.Description,
			Err: fmt.Errorf("vtpass code %s: %s", res.Code, res.Description),
		}, data)
	}

	patch := repo.OrderPatch{VTpassStatus: repo.VTpassSuccessful, VTpassResponse: res.Data}
	if req.ServiceType == repo.ServiceElectricity {
		patch.Electricity = e.electricityDetails(req, res)
	}
	updated, err := e.store.UpdateOrder(rctx, req.RequestID, patch)
	if err != nil {
		e.count(req.ServiceType, "unrecorded")
		e.countError()
		logger.Error("vtpass charged but order update failed", "error", err, "vtpass_response", res.Data)
		return nil, &UnrecordedChargeError{RequestID: req.RequestID, Err: err}
	}
	e.transition(repo.VTpassSuccessful)
	e.count(req.ServiceType, "success")
	logger.Info("order fulfilled", "order_id", updated.ID)
	return &Outcome{Order: updated, Message: successMessages[req.ServiceType]}, nil
}

func (e *Engine) resolveExisting(req Request, existing *repo.Order) (*Outcome, error) {
	if existing.VTpassStatus == repo.VTpassSuccessful && existing.OnChainStatus == repo.OnChainConfirmed {
		e.count(req.ServiceType, "replayed")
		return &Outcome{Order: existing, Replayed: true, Message: replayMessage}, nil
	}
	e.count(req.ServiceType, "conflict")
	return nil, &ConflictError{RequestID: req.RequestID, Status: existing.VTpassStatus}
}

// afterDuplicate resolves a lost insert race by reading the winner's order.
func (e *Engine) afterDuplicate(ctx context.Context, req Request, dupErr error) (*Outcome, error) {
	existing, err := e.store.FindOrderByRequestID(ctx, req.RequestID)
	switch {
	case err == nil:
		return e.resolveExisting(req, existing)
	case errors.Is(err, repo.ErrNotFound):
		e.count(req.ServiceType, "conflict")
		var dup *repo.DuplicateKeyError
		if errors.As(dupErr, &dup) && dup.Key == repo.KeyRequestID {
			return nil, &ConflictError{RequestID: req.RequestID}
		}
		// The collision was on the transaction hash of another order.
		conflict := &ConflictError{RequestID: req.RequestID, TransactionHash: req.TransactionHash}
		owner, err := e.store.FindOrderByTransactionHash(ctx, req.TransactionHash)
		if err != nil {
			e.logger.Warn("look up transaction hash owner", "request_id", req.RequestID, "error", err)
			return nil, conflict
		}
		conflict.Status = owner.VTpassStatus
		e.logger.Warn("transaction hash reused",
			"request_id", req.RequestID,
			"tx_hash", req.TransactionHash,
			"owner_request_id", owner.RequestID,
			"owner_status", string(owner.VTpassStatus),
		)
		return nil, conflict
	default:
		e.count(req.ServiceType, "store_error")
		return nil, &StoreError{Op: "lookup", RequestID: req.RequestID, Err: err}
	}
}

// fail records the failed status and returns ferr. A store failure is
// attached to ferr rather than replacing it.
func (e *Engine) fail(ctx context.Context, logger *slog.Logger, req Request, ferr *FulfillmentError, response map[string]any) error {
	ferr.RequestID = req.RequestID
	ferr.ServiceType = req.ServiceType
	status := ferr.Status()

	updated, err := e.store.UpdateOrder(ctx, req.RequestID, repo.OrderPatch{VTpassStatus: status, VTpassResponse: response})
	if err != nil {
		e.countError()
		logger.Error("record failed order status", "status", string(status), "error", err)
		ferr.StoreErr = err
	} else {
		e.transition(status)
		ferr.Order = updated
	}
	e.count(req.ServiceType, string(ferr.Kind))
	return ferr
}

func (e *Engine) electricityDetails(req Request, res *vtpass.PurchaseResult) *repo.ElectricityDetails {
	tok := res.TokenDetails()
	d := &repo.ElectricityDetails{
		Token:           tok.Token,
		Units:           tok.Units,
		Tariff:          tok.Tariff,
		MeterType:       req.VariationCode,
		KCT1:            tok.KCT1,
		KCT2:            tok.KCT2,
		PurchasedCode:   tok.PurchasedCode,
		CustomerName:    tok.CustomerName,
		CustomerAddress: tok.CustomerAddress,
		MeterNumber:     tok.MeterNumber,
		Amount:          tok.Amount,
	}
	// What VTpass reports as delivered wins over what was requested.
	if d.Amount == "" {
		d.Amount = req.Amount.String()
	}
	if d.MeterNumber == "" {
		d.MeterNumber = req.CustomerIdentifier
	}
	when := tok.TransactionDate
	if when.IsZero() {
		when = e.now().UTC()
	}
	d.TransactionDate = &when
	return d
}

func (r Request) purchaseParams() vtpass.PurchaseParams {
	return vtpass.PurchaseParams{
		RequestID:     r.RequestID,
		ServiceID:     r.ServiceID,
		BillersCode:   r.CustomerIdentifier,
		VariationCode: r.VariationCode,
		Amount:        r.Amount,
		Phone:         r.Phone,
	}
}

func (e *Engine) count(service repo.ServiceType, outcome string) {
	if e.metrics != nil {
		e.metrics.PurchaseRequests.WithLabelValues(string(service), outcome).Inc()
	}
}

func (e *Engine) transition(status repo.VTpassStatus) {
	if e.metrics != nil {
		e.metrics.OrderTransitions.WithLabelValues(string(status)).Inc()
	}
}

func (e *Engine) countError() {
	if e.metrics != nil {
		e.metrics.Errors.WithLabelValues("purchase").Inc()
	}
}
