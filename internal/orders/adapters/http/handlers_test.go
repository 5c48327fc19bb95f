package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/dejobratic/laborders/internal/auth"
	"github.com/dejobratic/laborders/internal/clock"
	idemmemory "github.com/dejobratic/laborders/internal/idempotency/memory"
	orderhttp "github.com/dejobratic/laborders/internal/orders/adapters/http"
	"github.com/dejobratic/laborders/internal/orders/adapters/memory"
	"github.com/dejobratic/laborders/internal/orders/app"
	"github.com/dejobratic/laborders/internal/orders/domain"
	"github.com/dejobratic/laborders/internal/orders/metrics"
	"github.com/dejobratic/laborders/internal/orders/ports"
)

type nopEvents struct{}

func (nopEvents) PublishOrderCreated(context.Context, domain.Order) error { return nil }
func (nopEvents) PublishOrderAdvanced(context.Context, domain.Order, domain.OrderState) error {
	return nil
}

type failingRepository struct {
	ports.OrderRepository
}

func (failingRepository) List(context.Context, ports.ListFilter) (ports.ListResult, error) {
	return ports.ListResult{}, errors.New("connection refused")
}

func newServer(t *testing.T, repo ports.OrderRepository, protect func(http.Handler) http.Handler) *httptest.Server {
	t.Helper()
	m, err := metrics.NewMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := app.NewService(repo, nopEvents{}, idemmemory.NewStore(nil, time.Hour), logger, m)

	mux := http.NewServeMux()
	orderhttp.NewHandler(svc, logger).Register(mux, protect)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newMemoryServer(t *testing.T) *httptest.Server {
	t.Helper()
	start := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	return newServer(t, memory.NewRepository(clock.Stepper(start, time.Second)), nil)
}

func do(t *testing.T, method, url, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

const twoServices = `{
	"lab": "Central Lab",
	"patient": "Jane Roe",
	"customer": "Acme Health",
	"state": "COMPLETED",
	"status": "DELETED",
	"services": [{"name": "CBC", "value": 50}, {"name": "X-Ray", "value": 100}]
}`

func TestCreateOrder(t *testing.T) {
	srv := newMemoryServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/orders", twoServices, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var order map[string]any
	require.NoError(t, json.Unmarshal(body, &order))

	assert.NotEmpty(t, order["id"])
	assert.Equal(t, "/orders/"+order["id"].(string), resp.Header.Get("Location"))
	assert.Equal(t, "CREATED", order["state"])
	assert.Equal(t, "ACTIVE", order["status"])
	assert.NotContains(t, order, "version")
	assert.Contains(t, order, "createdAt")
	assert.Contains(t, order, "updatedAt")

	services := order["services"].([]any)
	require.Len(t, services, 2)
	first := services[0].(map[string]any)
	assert.Equal(t, "CBC", first["name"])
	assert.Equal(t, float64(50), first["value"])
	assert.Equal(t, "PENDING", first["status"])
	assert.Equal(t, "X-Ray", services[1].(map[string]any)["name"])
}

func TestCreateOrder_Rejections(t *testing.T) {
	srv := newMemoryServer(t)

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{
			name:    "malformed json",
			body:    `{"lab":`,
			wantMsg: "invalid JSON payload",
		},
		{
			name:    "no services",
			body:    `{"lab":"L","patient":"P","customer":"C","services":[]}`,
			wantMsg: "services array is required and must have at least one item",
		},
		{
			name:    "missing services",
			body:    `{"lab":"L","patient":"P","customer":"C"}`,
			wantMsg: "services array is required and must have at least one item",
		},
		{
			name:    "zero total",
			body:    `{"lab":"L","patient":"P","customer":"C","services":[{"name":"A","value":10},{"name":"B","value":-10}]}`,
			wantMsg: "total order value must be greater than 0",
		},
		{
			name:    "negative item",
			body:    `{"lab":"L","patient":"P","customer":"C","services":[{"name":"A","value":-5}]}`,
			wantMsg: "total order value must be greater than 0",
		},
		{
			name:    "missing value",
			body:    `{"lab":"L","patient":"P","customer":"C","services":[{"name":"A"}]}`,
			wantMsg: "service value is required",
		},
		{
			name:    "non numeric value",
			body:    `{"lab":"L","patient":"P","customer":"C","services":[{"name":"A","value":"ten"}]}`,
			wantMsg: "invalid JSON payload",
		},
		{
			name:    "missing lab",
			body:    `{"patient":"P","customer":"C","services":[{"name":"A","value":1}]}`,
			wantMsg: "lab is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, srv.URL+"/orders", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var e errorBody
			require.NoError(t, json.Unmarshal(body, &e))
			assert.Equal(t, "validation_error", e.Code)
			assert.Equal(t, tt.wantMsg, e.Error)
		})
	}
}

func TestCreateOrder_IdempotencyKeyReplaysResponse(t *testing.T) {
	srv := newMemoryServer(t)
	headers := map[string]string{"Idempotency-Key": "req-1"}

	first, firstBody := do(t, http.MethodPost, srv.URL+"/orders", twoServices, headers)
	require.Equal(t, http.StatusCreated, first.StatusCode)
	assert.Empty(t, first.Header.Get("Idempotent-Replayed"))

	second, secondBody := do(t, http.MethodPost, srv.URL+"/orders", twoServices, headers)
	require.Equal(t, http.StatusCreated, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get("Idempotent-Replayed"))
	assert.Equal(t, firstBody, secondBody)

	_, listBody := do(t, http.MethodGet, srv.URL+"/orders", "", nil)
	var list app.OrderList
	require.NoError(t, json.Unmarshal(listBody, &list))
	assert.Equal(t, 1, list.Meta.Total)

	third, _ := do(t, http.MethodPost, srv.URL+"/orders", twoServices, map[string]string{"Idempotency-Key": "req-2"})
	assert.Equal(t, http.StatusCreated, third.StatusCode)
	assert.Empty(t, third.Header.Get("Idempotent-Replayed"))
}

func TestCreateOrder_ConcurrentSameIdempotencyKeyCreatesOnce(t *testing.T) {
	srv := newMemoryServer(t)

	const callers = 8
	var (
		wg       sync.WaitGroup
		statuses [callers]int
		ids      [callers]string
		errs     [callers]error
	)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodPost, srv.URL+"/orders", strings.NewReader(twoServices))
			if err != nil {
				errs[i] = err
				return
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Idempotency-Key", "same-key")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()
			statuses[i] = resp.StatusCode
			var order app.OrderResponse
			errs[i] = json.NewDecoder(resp.Body).Decode(&order)
			ids[i] = order.ID
		}()
	}
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, http.StatusCreated, statuses[i])
		assert.Equal(t, ids[0], ids[i])
	}

	_, listBody := do(t, http.MethodGet, srv.URL+"/orders", "", nil)
	var list app.OrderList
	require.NoError(t, json.Unmarshal(listBody, &list))
	assert.Equal(t, 1, list.Meta.Total)
}

func TestAdvanceOrder(t *testing.T) {
	srv := newMemoryServer(t)

	_, body := do(t, http.MethodPost, srv.URL+"/orders", twoServices, nil)
	var created app.OrderResponse
	require.NoError(t, json.Unmarshal(body, &created))

	for _, want := range []string{"ANALYSIS", "COMPLETED"} {
		resp, body := do(t, http.MethodPatch, srv.URL+"/orders/"+created.ID+"/advance", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

		var order app.OrderResponse
		require.NoError(t, json.Unmarshal(body, &order))
		assert.Equal(t, want, order.State)
	}

	resp, body := do(t, http.MethodPatch, srv.URL+"/orders/"+created.ID+"/advance", "", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var e errorBody
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "order_conflict", e.Code)
	assert.Equal(t, "order is already in final state (COMPLETED), cannot advance further", e.Error)

	resp, body = do(t, http.MethodGet, srv.URL+"/orders/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var current app.OrderResponse
	require.NoError(t, json.Unmarshal(body, &current))
	assert.Equal(t, "COMPLETED", current.State)
}

func TestAdvanceOrder_NotFound(t *testing.T) {
	srv := newMemoryServer(t)

	for _, id := range []string{"8c2b3b8e-4b0a-4d77-bb52-8d8f2a6c1f00", "not-a-uuid"} {
		resp, body := do(t, http.MethodPatch, srv.URL+"/orders/"+id+"/advance", "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		var e errorBody
		require.NoError(t, json.Unmarshal(body, &e))
		assert.Equal(t, "order_not_found", e.Code)
	}
}

func TestListOrders(t *testing.T) {
	srv := newMemoryServer(t)

	var ids []string
	for range 3 {
		_, body := do(t, http.MethodPost, srv.URL+"/orders", twoServices, nil)
		var created app.OrderResponse
		require.NoError(t, json.Unmarshal(body, &created))
		ids = append(ids, created.ID)
	}
	do(t, http.MethodPatch, srv.URL+"/orders/"+ids[0]+"/advance", "", nil)

	t.Run("defaults and newest first", func(t *testing.T) {
		resp, body := do(t, http.MethodGet, srv.URL+"/orders", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var raw map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(body, &raw))
		assert.JSONEq(t, `{"page":1,"limit":10,"total":3,"totalPages":1}`, string(raw["meta"]))

		var list app.OrderList
		require.NoError(t, json.Unmarshal(body, &list))
		require.Len(t, list.Data, 3)
		assert.Equal(t, ids[2], list.Data[0].ID)
	})

	t.Run("state filter is case insensitive", func(t *testing.T) {
		_, body := do(t, http.MethodGet, srv.URL+"/orders?state=analysis", "", nil)

		var list app.OrderList
		require.NoError(t, json.Unmarshal(body, &list))
		assert.Equal(t, 1, list.Meta.Total)
		require.Len(t, list.Data, 1)
		assert.Equal(t, ids[0], list.Data[0].ID)
	})

	t.Run("paging is clamped and junk falls back to defaults", func(t *testing.T) {
		_, body := do(t, http.MethodGet, srv.URL+"/orders?page=0&limit=500", "", nil)
		var list app.OrderList
		require.NoError(t, json.Unmarshal(body, &list))
		assert.Equal(t, app.ListMeta{Page: 1, Limit: 100, Total: 3, TotalPages: 1}, list.Meta)

		_, body = do(t, http.MethodGet, srv.URL+"/orders?page=abc&limit=xyz", "", nil)
		require.NoError(t, json.Unmarshal(body, &list))
		assert.Equal(t, 1, list.Meta.Page)
		assert.Equal(t, 10, list.Meta.Limit)
	})

	t.Run("window past the end", func(t *testing.T) {
		_, body := do(t, http.MethodGet, srv.URL+"/orders?page=2&limit=2", "", nil)
		var list app.OrderList
		require.NoError(t, json.Unmarshal(body, &list))
		assert.Len(t, list.Data, 1)
		assert.Equal(t, 2, list.Meta.TotalPages)

		_, body = do(t, http.MethodGet, srv.URL+"/orders?page=9", "", nil)
		assert.True(t, bytes.Contains(body, []byte(`"data":[]`)))
	})

	t.Run("unknown state", func(t *testing.T) {
		resp, body := do(t, http.MethodGet, srv.URL+"/orders?state=SHIPPED", "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var e errorBody
		require.NoError(t, json.Unmarshal(body, &e))
		assert.Equal(t, "validation_error", e.Code)
	})
}

func TestListOrders_StorageFailureIsOpaque(t *testing.T) {
	srv := newServer(t, failingRepository{OrderRepository: memory.NewRepository(nil)}, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/orders", "", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var e errorBody
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "internal_error", e.Code)
	assert.NotContains(t, e.Error, "connection refused")
}

func TestRoutesRequireBearerToken(t *testing.T) {
	const secret = "handler-secret"
	verifier, err := auth.NewJWTVerifier(secret)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := newServer(t, memory.NewRepository(nil), auth.Middleware(verifier, logger))

	resp, _ := do(t, http.MethodGet, srv.URL+"/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/orders", twoServices, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := auth.IssueToken(secret, "user-1", time.Hour, time.Now())
	require.NoError(t, err)
	bearer := map[string]string{"Authorization": "Bearer " + token}

	resp, _ = do(t, http.MethodPost, srv.URL+"/orders", twoServices, bearer)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/orders", "", bearer)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newMemoryServer(t)

	resp, _ := do(t, http.MethodDelete, srv.URL+"/orders", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
