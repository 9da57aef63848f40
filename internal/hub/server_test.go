package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgersync/internal/remote"
	"github.com/roach88/ledgersync/internal/remote/memstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, opts ...memstore.Option) (*Server, *gin.Engine, *memstore.Store) {
	t.Helper()
	backend := memstore.New(opts...)
	srv := New(backend)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Close() })
	return srv, srv.Router(), backend
}

func perform(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestHealth(t *testing.T) {
	_, router, _ := newTestServer(t)
	w, _ := perform(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpsertAndSelect(t *testing.T) {
	_, router, backend := newTestServer(t)

	w, resp := perform(t, router, http.MethodPost, "/tables/customers/upsert", UpsertRequest{
		Rows: []map[string]any{{"id": "c1", "name": "Ada", "wallet_balance": json.Number("0.10")}},
	})
	require.Equal(t, http.StatusOK, w.Code, resp.Error)
	assert.Equal(t, "success", resp.Status)

	rows, err := backend.Select(context.Background(), remote.TableCustomers, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, json.Number("0.10"), rows[0]["wallet_balance"], "numbers keep their exact text")

	w, resp = perform(t, router, http.MethodGet, "/tables/customers?column=id&value=c1&value=c9", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Len(t, data, 1)
}

func TestSelect_EmptyTableReturnsList(t *testing.T) {
	_, router, _ := newTestServer(t)

	w, _ := perform(t, router, http.MethodGet, "/tables/stock", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestDelete(t *testing.T) {
	_, router, backend := newTestServer(t)
	require.NoError(t, backend.Upsert(context.Background(), remote.TableSales, []remote.Row{{"id": "s1"}, {"id": "s2"}}))

	w, _ := perform(t, router, http.MethodPost, "/tables/sales/delete", remote.Filter{Column: "id", Values: []string{"s1"}})
	require.Equal(t, http.StatusOK, w.Code)

	rows, err := backend.Select(context.Background(), remote.TableSales, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "s2", rows[0]["id"])

	w, resp := perform(t, router, http.MethodPost, "/tables/sales/delete", remote.Filter{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "error", resp.Status)
}

func TestUnknownTable(t *testing.T) {
	_, router, _ := newTestServer(t)

	w, resp := perform(t, router, http.MethodGet, "/tables/invoices", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeUnknownTable, resp.Code)
}

func TestMissingColumn(t *testing.T) {
	_, router, _ := newTestServer(t, memstore.WithoutColumns(remote.TableSales, "payment_history"))

	w, resp := perform(t, router, http.MethodPost, "/tables/sales/upsert", UpsertRequest{
		Rows: []map[string]any{{"id": "s1", "payment_history": []any{}}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, CodeMissingColumn, resp.Code)
	assert.Equal(t, "payment_history", resp.Column)
}

func TestBackendFailure(t *testing.T) {
	_, router, backend := newTestServer(t)
	backend.FailWrites(assert.AnError)

	w, resp := perform(t, router, http.MethodPost, "/tables/customers/upsert", UpsertRequest{
		Rows: []map[string]any{{"id": "c1"}},
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, assert.AnError.Error(), resp.Error)
}

func TestBadJSON(t *testing.T) {
	_, router, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/tables/sales/upsert", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckOrigin(t *testing.T) {
	srv := New(memstore.New(), WithAllowedOrigins("http://localhost:5173"))

	ok := httptest.NewRequest(http.MethodGet, "/", nil)
	ok.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, srv.checkOrigin(ok))

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.Header.Set("Origin", "http://evil.example")
	assert.False(t, srv.checkOrigin(bad))

	assert.True(t, New(memstore.New()).checkOrigin(bad))
}

func TestChangesBeforeStart(t *testing.T) {
	router := New(memstore.New()).Router()
	w, _ := perform(t, router, http.MethodGet, "/tables/sales/changes", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestTableHub_SlowClientKeepsEveryChange(t *testing.T) {
	srv, _, backend := newTestServer(t)
	h, ok := srv.hub(remote.TableCustomers)
	require.True(t, ok)

	cl := newClient(h)
	require.True(t, h.join(cl))
	defer h.leave(cl)

	const n = 300
	for i := 0; i < n; i++ {
		backend.Publish(remote.Change{
			Table: remote.TableCustomers,
			Type:  remote.ChangeInsert,
			New:   remote.Row{"id": fmt.Sprintf("c%d", i)},
		})
	}

	for i := 0; i < n; i++ {
		select {
		case change := <-cl.queue.Changes():
			assert.Equal(t, fmt.Sprintf("c%d", i), change.New["id"])
		case <-time.After(2 * time.Second):
			t.Fatalf("change %d never arrived", i)
		}
	}
}
