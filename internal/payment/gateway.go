package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"market/internal/order"
)

// ErrGatewayUnavailable is a transient failure talking to the provider. The
// order stays PENDING; the caller may retry with the same transaction reference.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// InitiateRequest asks the provider to open a hosted payment flow.
type InitiateRequest struct {
	OrderID string
	TxnRef  string
	Amount  decimal.Decimal
	Method  order.PaymentMethod
}

// InitiateResponse carries the provider redirect URL.
type InitiateResponse struct {
	PayURL string `json:"payUrl"`
}

// Gateway initiates payments with the external provider. The provider holds
// no authoritative state; outcomes arrive later through the callback endpoint.
type Gateway interface {
	InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResponse, error)
}

// HTTPGateway signs initiation requests with the shared provider secret and
// posts them over HTTP with a bounded timeout.
type HTTPGateway struct {
	baseURL string
	secret  string
	client  *http.Client
}

// NewHTTPGateway creates a provider client. timeout bounds every initiation call.
func NewHTTPGateway(baseURL, secret string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGateway) InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	params := url.Values{}
	params.Set("orderId", req.OrderID)
	params.Set("txnRef", req.TxnRef)
	params.Set("amount", req.Amount.StringFixed(2))
	params.Set("method", string(req.Method))
	params.Set("signature", Sign(params, g.secret))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/payments", strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: provider returned %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider rejected initiation: status %d", resp.StatusCode)
	}

	var out InitiateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	return &out, nil
}

// Sign computes the HMAC-SHA256 hex signature of the sorted params, excluding
// any existing signature field. Callback verification uses the same scheme.
func Sign(params url.Values, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params.Get(k))
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a callback signature in constant time.
func VerifySignature(params url.Values, secret, signature string) bool {
	expected := Sign(params, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
