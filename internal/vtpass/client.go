package vtpass

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/govalues/decimal"

	"paycrypt/internal/metrics"
)

const (
	// LiveBaseURL is the production VTpass API.
	LiveBaseURL = "https://vtpass.com/api"
	// SandboxBaseURL is used outside production.
	SandboxBaseURL = "https://sandbox.vtpass.com/api"

	// SuccessCode is the body-level code VTpass returns for an accepted call.
	SuccessCode = "000"

	defaultCatalogTTL = 30 * time.Minute
	defaultTimeout    = 30 * time.Second
	maxBodyBytes      = 1 << 20
)

var (
	// ErrTransport indicates VTpass could not be reached or answered with
	// something that is not a VTpass JSON body. The charge state is unknown.
	ErrTransport = errors.New("vtpass transport failure")
	// ErrNotConfigured indicates the credentials a call needs are missing.
	ErrNotConfigured = errors.New("vtpass credentials not configured")
)

// ProviderError is a well-formed VTpass rejection of a catalog or
// verification call.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("vtpass rejected request: code=%s %s", e.Code, e.Description)
}

// Cache stores catalog responses. *cache.Redis satisfies it.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Client provides typed access to the VTpass API.
type Client struct {
	logger     *slog.Logger
	baseURL    string
	apiKey     string
	publicKey  string
	secretKey  string
	http       *http.Client
	metrics    *metrics.Metrics
	cache      Cache
	catalogTTL time.Duration
}

// Config holds VTpass client configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	PublicKey  string
	SecretKey  string
	Timeout    time.Duration
	CatalogTTL time.Duration
}

// BaseURLFor returns the VTpass API root for the given environment.
func BaseURLFor(production bool) string {
	if production {
		return LiveBaseURL
	}
	return SandboxBaseURL
}

// New creates a new VTpass client. metrics and cache may be nil.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics, c Cache) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = SandboxBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ttl := cfg.CatalogTTL
	if ttl <= 0 {
		ttl = defaultCatalogTTL
	}
	return &Client{
		logger:     logger.With("component", "vtpass"),
		baseURL:    base,
		apiKey:     cfg.APIKey,
		publicKey:  cfg.PublicKey,
		secretKey:  cfg.SecretKey,
		http:       &http.Client{Timeout: timeout},
		metrics:    m,
		cache:      c,
		catalogTTL: ttl,
	}
}

// PurchaseParams is the body of POST /pay.
type PurchaseParams struct {
	RequestID     string          `json:"request_id"`
	ServiceID     string          `json:"serviceID"`
	BillersCode   string          `json:"billersCode"`
	VariationCode string          `json:"variation_code,omitempty"`
	Amount        decimal.Decimal `json:"-"`
	Phone         string          `json:"phone,omitempty"`
}

func (p PurchaseParams) MarshalJSON() ([]byte, error) {
	type alias PurchaseParams
	return json.Marshal(struct {
		alias
		Amount json.Number `json:"amount"`
	}{alias: alias(p), Amount: json.Number(p.Amount.String())})
}

// PurchaseResult is VTpass's answer to a purchase. Success is true only for
// code "000". An empty Code means the body lacked the success indicator.
type PurchaseResult struct {
	Success     bool
	Code        string
	Description string
	Data        map[string]any
}

// Malformed reports whether the body carried no VTpass code at all.
func (r *PurchaseResult) Malformed() bool {
	return r.Code == ""
}

// Purchase submits a payment. It returns an error wrapping ErrTransport when
// VTpass was unreachable or the body was not JSON; a declined purchase is a
// result with Success false.
func (c *Client) Purchase(ctx context.Context, params PurchaseParams) (*PurchaseResult, error) {
	if c.apiKey == "" || c.secretKey == "" {
		return nil, ErrNotConfigured
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode purchase: %w", err)
	}
	headers := map[string]string{"secret-key": c.secretKey}

	data, err := c.do(ctx, http.MethodPost, "/pay", bytes.NewReader(body), headers)
	if err != nil {
		return nil, err
	}

	res := &PurchaseResult{
		Code:        firstString(data, "code"),
		Description: firstString(data, "response_description", "message"),
		Data:        data,
	}
	res.Success = res.Code == SuccessCode
	if !res.Success && res.Description == "" && !res.Malformed() {
		res.Description = "VTpass purchase failed"
	}
	c.logger.Debug("purchase response", "request_id", params.RequestID, "code", res.Code)
	return res, nil
}

// VerifyParams is the body of POST /merchant-verify.
type VerifyParams struct {
	ServiceID   string `json:"serviceID"`
	BillersCode string `json:"billersCode"`
	Type        string `json:"type,omitempty"`
}

// Customer is the verified account behind a meter or smartcard number.
type Customer struct {
	Name           string         `json:"customerName,omitempty"`
	Address        string         `json:"address,omitempty"`
	MeterNumber    string         `json:"meterNumber,omitempty"`
	MeterType      string         `json:"meterType,omitempty"`
	CurrentBouquet string         `json:"currentBouquet,omitempty"`
	DueDate        string         `json:"dueDate,omitempty"`
	Status         string         `json:"status,omitempty"`
	Content        map[string]any `json:"content"`
}

// VerifyCustomer checks a meter, smartcard or account number with VTpass.
func (c *Client) VerifyCustomer(ctx context.Context, params VerifyParams) (*Customer, error) {
	if c.apiKey == "" || c.publicKey == "" {
		return nil, ErrNotConfigured
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode verify: %w", err)
	}
	data, err := c.do(ctx, http.MethodPost, "/merchant-verify", bytes.NewReader(body), c.publicHeaders())
	if err != nil {
		return nil, err
	}
	if err := providerError(data); err != nil {
		return nil, err
	}

	content := extractNested(data, "content")
	if content == nil {
		content = map[string]any{}
	}
	if msg := firstString(content, "error"); msg != "" || content["WrongBillersCode"] == true {
		if msg == "" {
			msg = "invalid customer identifier"
		}
		return nil, &ProviderError{Code: firstString(data, "code"), Description: msg}
	}
	return &Customer{
		Name:           firstString(content, "Customer_Name", "customerName", "name"),
		Address:        firstString(content, "Address", "address", "customerAddress"),
		MeterNumber:    firstString(content, "Meter_Number", "MeterNumber", "meterNumber"),
		MeterType:      firstString(content, "Meter_Type", "meterType"),
		CurrentBouquet: firstString(content, "Current_Bouquet", "currentBouquet"),
		DueDate:        firstString(content, "Due_Date", "dueDate"),
		Status:         firstString(content, "Status", "status"),
		Content:        content,
	}, nil
}

// Service is one entry of GET /services.
type Service struct {
	ServiceID      string `json:"serviceID"`
	Name           string `json:"name"`
	MinimumAmount  string `json:"minimumAmount,omitempty"`
	MaximumAmount  string `json:"maximumAmount,omitempty"`
	ConvenienceFee string `json:"convenienceFee,omitempty"`
	ProductType    string `json:"productType,omitempty"`
	Image          string `json:"image,omitempty"`
}

// ListServices returns the services under a category identifier such as
// "airtime", "data", "electricity-bill" or "tv-subscription".
func (c *Client) ListServices(ctx context.Context, identifier string) ([]Service, error) {
	identifier = strings.TrimSpace(identifier)
	cacheKey := servicesCacheKey(identifier)
	var cached []Service
	if c.readCache(ctx, cacheKey, &cached) {
		return cached, nil
	}

	data, err := c.catalog(ctx, "/services", url.Values{"identifier": {identifier}})
	if err != nil {
		return nil, err
	}
	rows := extractSlice(data, "content")
	services := make([]Service, 0, len(rows))
	for _, row := range rows {
		services = append(services, Service{
			ServiceID:      firstString(row, "serviceID"),
			Name:           firstString(row, "name"),
			MinimumAmount:  firstString(row, "minimium_amount", "minimum_amount"),
			MaximumAmount:  firstString(row, "maximum_amount"),
			ConvenienceFee: firstString(row, "convinience_fee", "convenience_fee"),
			ProductType:    firstString(row, "product_type"),
			Image:          firstString(row, "image"),
		})
	}

	c.writeCache(ctx, cacheKey, services)
	return services, nil
}

// ReloadServices drops the cached service list for identifier and fetches it
// again from VTpass.
func (c *Client) ReloadServices(ctx context.Context, identifier string) ([]Service, error) {
	identifier = strings.TrimSpace(identifier)
	if c.cache != nil {
		if err := c.cache.Delete(ctx, servicesCacheKey(identifier)); err != nil {
			c.logger.Warn("evict catalog cache failed", "identifier", identifier, "error", err)
		}
	}
	return c.ListServices(ctx, identifier)
}

func servicesCacheKey(identifier string) string {
	return "vtpass:services:" + identifier
}

// Variation is a plan or bouquet of a service.
type Variation struct {
	VariationCode string `json:"variationCode"`
	Name          string `json:"name"`
	Amount        string `json:"amount"`
	FixedPrice    bool   `json:"fixedPrice"`
}

// ServiceVariations is the response of GET /service-variations.
type ServiceVariations struct {
	ServiceID      string      `json:"serviceID"`
	ServiceName    string      `json:"serviceName"`
	ConvenienceFee string      `json:"convenienceFee,omitempty"`
	Variations     []Variation `json:"variations"`
}

// ListVariations returns the plans offered for serviceID.
func (c *Client) ListVariations(ctx context.Context, serviceID string) (*ServiceVariations, error) {
	serviceID = strings.TrimSpace(serviceID)
	cacheKey := "vtpass:variations:" + serviceID
	var cached ServiceVariations
	if c.readCache(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	data, err := c.catalog(ctx, "/service-variations", url.Values{"serviceID": {serviceID}})
	if err != nil {
		return nil, err
	}
	content := extractNested(data, "content")
	if content == nil {
		return nil, fmt.Errorf("parse service variations: %w", ErrTransport)
	}

	out := &ServiceVariations{
		ServiceID:      firstString(content, "serviceID"),
		ServiceName:    firstString(content, "ServiceName", "serviceName"),
		ConvenienceFee: firstString(content, "convinience_fee", "convenience_fee"),
		Variations:     []Variation{},
	}
	if out.ServiceID == "" {
		out.ServiceID = serviceID
	}
	// VTpass spells the key "varations" on most services.
	rows := extractSlice(content, "varations", "variations")
	for _, row := range rows {
		out.Variations = append(out.Variations, Variation{
			VariationCode: firstString(row, "variation_code"),
			Name:          firstString(row, "name"),
			Amount:        firstString(row, "variation_amount", "amount"),
			FixedPrice:    strings.EqualFold(firstString(row, "fixedPrice"), "yes"),
		})
	}

	c.writeCache(ctx, cacheKey, out)
	return out, nil
}

func (c *Client) catalog(ctx context.Context, endpoint string, query url.Values) (map[string]any, error) {
	if c.apiKey == "" || c.publicKey == "" {
		return nil, ErrNotConfigured
	}
	data, err := c.do(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil, c.publicHeaders())
	if err != nil {
		return nil, err
	}
	if err := providerError(data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) readCache(ctx context.Context, key string, dest any) bool {
	if c.cache == nil {
		return false
	}
	ok, err := c.cache.GetJSON(ctx, key, dest)
	if err != nil {
		c.logger.Warn("read catalog cache failed", "key", key, "error", err)
		c.countCache("error")
		return false
	}
	if ok {
		c.countCache("hit")
	} else {
		c.countCache("miss")
	}
	return ok
}

func (c *Client) writeCache(ctx context.Context, key string, value any) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SetJSON(ctx, key, value, c.catalogTTL); err != nil {
		c.logger.Warn("set catalog cache failed", "key", key, "error", err)
	}
}

func (c *Client) countCache(result string) {
	if c.metrics != nil {
		c.metrics.CatalogCacheReads.WithLabelValues(result).Inc()
	}
}

func (c *Client) publicHeaders() map[string]string {
	return map[string]string{"public-key": c.publicKey}
}

// do performs the request and decodes a JSON object body. Anything short of
// that is reported as ErrTransport.
func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, headers map[string]string) (map[string]any, error) {
	metricEndpoint := endpoint
	if i := strings.IndexByte(metricEndpoint, '?'); i >= 0 {
		metricEndpoint = metricEndpoint[:i]
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "paycrypt/vtpass-client")
	req.Header.Set("api-key", c.apiKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.observe(metricEndpoint, "error", start)
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, metricEndpoint, err)
	}
	defer res.Body.Close()
	c.observe(metricEndpoint, strconv.Itoa(res.StatusCode), start)

	bodyBytes, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	data, err := decodeMap(bodyBytes)
	if err != nil || data == nil {
		return nil, fmt.Errorf("%w: status=%d non-JSON body: %s", ErrTransport, res.StatusCode, snippet(bodyBytes))
	}
	// An HTTP error without a VTpass code is a gateway or proxy failure.
	if res.StatusCode >= 400 && firstString(data, "code") == "" {
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrTransport, res.StatusCode, snippet(bodyBytes))
	}
	return data, nil
}

func (c *Client) observe(endpoint, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.VTpassRequests.WithLabelValues(endpoint, status).Inc()
	c.metrics.VTpassLatency.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())
}

func providerError(data map[string]any) error {
	code := firstString(data, "code")
	if code == SuccessCode {
		return nil
	}
	if code == "" {
		return fmt.Errorf("%w: response without code", ErrTransport)
	}
	desc := firstString(data, "response_description", "message")
	return &ProviderError{Code: code, Description: desc}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}
