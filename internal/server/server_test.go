package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/account"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/breaker"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/config"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/dispatch"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/models"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/phone"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/provider"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/route"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/store"
)

type okClient struct{}

func (okClient) Send(ctx context.Context, req provider.SendRequest) provider.SendResult {
	return provider.SendResult{Success: true, MessageID: "srv-1"}
}

func newTestServer(t *testing.T) (*HTTPServer, store.Store) {
	t.Helper()

	st := store.NewSQLiteStore(&store.StoreConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "api.db"),
		MaxConnections:   4,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, st.Connect())
	require.NoError(t, st.Migrate())
	t.Cleanup(func() { st.Close() })

	registry := account.NewRegistry([]models.AccountConfig{
		{Region: "mali", Generation: models.GenerationLegacy, InstanceID: "i1", AccessToken: "t1", Active: true},
	})
	phones := phone.NewNormalizer("", "")
	router := route.NewRouter(config.RoutingConfig{
		SystemRegion:  "mali",
		DefaultRegion: "mali",
		FallbackOrder: []string{"mali"},
		PrefixRegions: map[string]string{"223": "mali"},
	}, registry, phones)
	brk := breaker.New(5, 300*time.Second)

	retry := config.RetryConfig{
		MaxAttempts:         10,
		CriticalMaxAttempts: 3,
		BaseDelay:           30 * time.Minute,
		MaxDelay:            24 * time.Hour,
		SweepInterval:       time.Minute,
		BatchLimit:          100,
		StaleSendingAfter:   10 * time.Minute,
	}
	orch := dispatch.NewOrchestrator(st, router, registry, phones, brk, okClient{}, nil, nil, nil, retry)
	pool := dispatch.NewPool(orch, st, config.DeliveryConfig{Workers: 1, QueueSize: 10}, retry, nil)

	srv := NewHTTPServer(&config.ServerConfig{
		Port:         0,
		Host:         "127.0.0.1",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		EnableHealth: true,
	}, st, pool, nil, nil, brk, registry, nil)

	return srv, st
}

func doRequest(srv *HTTPServer, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestCreateNotification(t *testing.T) {
	srv, st := newTestServer(t)

	rec := doRequest(srv, "POST", "/api/v1/notifications", CreateNotificationRequest{
		UserID:      "user-1",
		Phone:       "+22376123456",
		Category:    "parcel-arrived",
		Message:     "Votre colis est arrive",
		BusinessRef: "lot-42",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var created models.NotificationRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, models.ChannelWhatsApp, created.Channel)

	stored, err := st.GetRecord(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "lot-42", stored.BusinessRef)
}

func TestCreateNotificationValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, "POST", "/api/v1/notifications", CreateNotificationRequest{
		UserID: "user-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetNotification(t *testing.T) {
	srv, _ := newTestServer(t)

	created := doRequest(srv, "POST", "/api/v1/notifications", CreateNotificationRequest{
		UserID: "user-1", Phone: "+22376123456", Message: "hello",
	})
	require.Equal(t, http.StatusAccepted, created.Code)

	var record models.NotificationRecord
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &record))

	rec := doRequest(srv, "GET", "/api/v1/notifications/"+record.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	missing := doRequest(srv, "GET", "/api/v1/notifications/nope", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestCancelNotification(t *testing.T) {
	srv, st := newTestServer(t)

	created := doRequest(srv, "POST", "/api/v1/notifications", CreateNotificationRequest{
		UserID: "user-1", Phone: "+22376123456", Message: "hello",
	})
	var record models.NotificationRecord
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &record))

	rec := doRequest(srv, "POST", "/api/v1/notifications/"+record.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := st.GetRecord(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)
}

func TestListNotificationsWithFilter(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, category := range []string{"otp", "reminder"} {
		rec := doRequest(srv, "POST", "/api/v1/notifications", CreateNotificationRequest{
			UserID: "user-1", Phone: "+22376123456", Category: category, Message: "hi",
		})
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	rec := doRequest(srv, "GET", "/api/v1/notifications?category=otp", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Notifications []models.NotificationRecord `json:"notifications"`
		Total         int64                       `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Total)
	require.Len(t, resp.Notifications, 1)
	assert.Equal(t, models.CategoryOTP, resp.Notifications[0].Category)
}

func TestRetryBusinessRef(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	record := &models.NotificationRecord{
		ID:          "failed-1",
		Recipient:   models.Recipient{UserID: "user-1", Phone: "+22376123456"},
		Channel:     models.ChannelWhatsApp,
		Category:    models.CategoryParcelArrived,
		Message:     "hi",
		BusinessRef: "lot-9",
		Status:      models.StatusFailedPermanent,
		MaxAttempts: 10,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	require.NoError(t, st.CreateRecord(ctx, record))

	rec := doRequest(srv, "POST", "/api/v1/notifications/retry/lot-9", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["rearmed"])

	stored, err := st.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, "GET", "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestDetailedHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, "GET", "/api/v1/health/detailed", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Contains(t, resp, "circuits")
}

func TestListAccounts(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, "GET", "/api/v1/accounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Accounts []map[string]interface{} `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Accounts, 1)
	assert.Equal(t, "mali", resp.Accounts[0]["region"])
	assert.Equal(t, true, resp.Accounts[0]["usable"])
}

func TestCircuitStateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, "GET", "/api/v1/accounts/mali/circuit", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var state breaker.CircuitState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.False(t, state.Open)
	assert.Equal(t, 0, state.ConsecutiveFailures)
}
