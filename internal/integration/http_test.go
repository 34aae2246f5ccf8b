package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"market/internal/auth"
	"market/internal/catalog"
	httpserver "market/internal/http"
	"market/internal/order"
	"market/internal/payment"
	"market/internal/testutil"
	"market/internal/user"
)

const itJWTSecret = "it-jwt-secret"
const itProviderSecret = "it-provider-secret"

type nopPublisher struct{}

func (nopPublisher) PublishOrderCreated(ctx context.Context, o *order.Order) error { return nil }
func (nopPublisher) PublishOrderCancelled(ctx context.Context, orderID, userID string) error {
	return nil
}

// newAPIStack wires the full HTTP surface against a real database, with the
// payment provider replaced by a local httptest server.
func newAPIStack(t *testing.T) (http.Handler, *httptest.Server) {
	t.Helper()
	ctx := testContext(t)

	db, cleanup := testutil.StartPostgres(ctx, t)
	t.Cleanup(cleanup)

	seedProduct(t, db, "p1", decimal.NewFromFloat(19.99))
	seedUser(t, db, "staff", "admin")

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if !payment.VerifySignature(r.Form, itProviderSecret, r.Form.Get("signature")) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"payUrl":"https://pay.example/hosted/` + r.Form.Get("txnRef") + `"}`))
	}))
	t.Cleanup(provider.Close)

	logger := zap.NewNop()
	orderRepo := order.NewRepository(db)
	orderSvc := order.NewService(orderRepo, catalog.NewRepository(db), logger)
	userSvc := user.NewService(user.NewRepository(db), logger)
	gateway := payment.NewHTTPGateway(provider.URL, itProviderSecret, 5*time.Second)
	paySvc := payment.NewService(orderRepo, gateway, itProviderSecret, logger)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Orders:    httpserver.NewOrderHandler(orderSvc, nopPublisher{}, logger),
		Payments:  httpserver.NewPaymentHandler(paySvc),
		Users:     httpserver.NewUserHandler(userSvc, itJWTSecret, time.Hour),
		Admin:     httpserver.NewAdminHandler(orderSvc, paySvc, userSvc),
		JWTSecret: itJWTSecret,
		Logger:    logger,
	})
	return router, provider
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAPI_CheckoutToDelivered(t *testing.T) {
	router, _ := newAPIStack(t)

	// Register and log in.
	rec := doJSON(t, router, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "buyer@example.com", "password": "correct-horse", "fullName": "Buyer",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "buyer@example.com", "password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&login))

	// Checkout.
	rec = doJSON(t, router, http.MethodPost, "/api/orders", login.Token, order.CreateRequest{
		Items:           []order.CreateItem{{ProductID: "p1", Quantity: 2}},
		ShippingAddress: "1 Main St",
		PaymentMethod:   order.MethodCard,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var o order.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&o))

	// Initiate the payment through the real gateway client.
	rec = doJSON(t, router, http.MethodPost, "/api/orders/"+o.ID+"/payment", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pr payment.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&pr))
	require.Contains(t, pr.PayURL, pr.TxnRef)

	// Provider callback.
	params := url.Values{}
	params.Set("txnRef", pr.TxnRef)
	params.Set("status", "SUCCESS")
	params.Set("signature", payment.Sign(params, itProviderSecret))
	rec = doJSON(t, router, http.MethodGet, "/api/payments/callback?"+params.Encode(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/orders/"+o.ID, login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var paid order.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&paid))
	require.Equal(t, order.StatusPaid, paid.Status)
	require.Equal(t, order.PaymentSuccess, paid.PaymentStatus)

	// Admin ships and delivers.
	admin, err := auth.IssueToken(itJWTSecret, auth.Identity{UserID: "staff", Role: auth.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	rec = doJSON(t, router, http.MethodPut, "/api/admin/orders/"+o.ID+"/status", admin,
		order.UpdateStatusRequest{Status: order.StatusShipped})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPut, "/api/admin/orders/"+o.ID+"/status", admin,
		order.UpdateStatusRequest{Status: order.StatusDelivered})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/admin/dashboard", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var m order.DashboardMetrics
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&m))
	require.EqualValues(t, 1, m.OrdersByStatus[order.StatusDelivered])
	require.True(t, m.TotalRevenue.Equal(paid.Total))
}
