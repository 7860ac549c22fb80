/*
handlers_test.go - HTTP boundary tests

Exercises the router end to end against the in-memory store: the JSON
contract, the lifecycle endpoints, and the error-to-status mapping.
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	router http.Handler
	store  *store.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mem := store.NewMemory()
	registry := payroll.NewRegistry(mem)
	lifecycle := payroll.NewLifecycle(registry, mem, mem, mem, zerolog.Nop())

	handler := &api.Handler{
		Registry:   registry,
		Configs:    mem,
		Lifecycle:  lifecycle,
		Aggregator: payroll.NewAggregator(mem),
		Runner:     payroll.NewBatchRunner(lifecycle, 2, zerolog.Nop()),
		Events:     mem,
		Log:        zerolog.Nop(),
	}
	return &testServer{router: api.NewRouter(handler), store: mem}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

// seed registers a structure and jurisdiction through the API itself.
func (ts *testServer) seed(t *testing.T, subject string) {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/api/structures", map[string]any{
		"id":              "s-" + subject,
		"subject":         subject,
		"kind":            "fixed_salary",
		"base_amount":     3_000_000,
		"currency":        "SEK",
		"cadence":         "monthly",
		"effective_start": "2025-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/tax-configs", map[string]any{
		"jurisdiction":    "se",
		"name":            "Sweden",
		"currency":        "SEK",
		"effective_start": "2025-01-01",
		"rates": []map[string]any{
			{"label": "employer social fee", "category": "social",
				"bearer": "employer", "rate": "0.3142"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (ts *testServer) createPeriod(t *testing.T, subject string) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/periods", map[string]any{
		"subject":      subject,
		"jurisdiction": "se",
		"start":        "2025-03-01",
		"end":          "2025-03-31",
		"payment_date": "2025-03-25",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &created)
	require.NotEmpty(t, created.ID)
	return created.ID
}

// =============================================================================
// LIFECYCLE OVER HTTP
// =============================================================================

func TestAPI_FullLifecycle(t *testing.T) {
	// GIVEN: A seeded structure and jurisdiction
	// WHEN: Driving a period through calculate, approve, and pay
	// THEN: Each endpoint returns the period with the expected figures

	ts := newTestServer(t)
	ts.seed(t, "emp-1")
	id := ts.createPeriod(t, "emp-1")

	rec := ts.do(t, http.MethodPost, "/api/periods/"+id+"/calculate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var period struct {
		Status            string `json:"status"`
		Gross             int64  `json:"gross"`
		EmployerSocial    int64  `json:"employer_social"`
		TotalEmployerCost int64  `json:"total_employer_cost"`
		Net               int64  `json:"net"`
	}
	decodeBody(t, rec, &period)
	assert.Equal(t, "calculated", period.Status)
	assert.Equal(t, int64(3_000_000), period.Gross)
	assert.Equal(t, int64(942_600), period.EmployerSocial)
	assert.Equal(t, int64(3_942_600), period.TotalEmployerCost)

	rec = ts.do(t, http.MethodPost, "/api/periods/"+id+"/approve",
		map[string]string{"approver": "manager-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/periods/"+id+"/pay",
		map[string]string{"payment_reference": "pay-001"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeBody(t, rec, &period)
	assert.Equal(t, "paid", period.Status)

	events, err := ts.store.Events(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "pay-001", events[0].PaymentReference)
}

func TestAPI_Report(t *testing.T) {
	// GIVEN: A Paid March period
	// WHEN: Requesting the March report
	// THEN: The report reconciles against the period's figures

	ts := newTestServer(t)
	ts.seed(t, "emp-1")
	id := ts.createPeriod(t, "emp-1")
	for _, step := range []struct {
		path string
		body any
	}{
		{"/calculate", nil},
		{"/approve", map[string]string{"approver": "manager-1"}},
		{"/pay", map[string]string{"payment_reference": "pay-001"}},
	} {
		rec := ts.do(t, http.MethodPost, "/api/periods/"+id+step.path, step.body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := ts.do(t, http.MethodGet,
		"/api/reports?jurisdiction=se&subjects=emp-1&year=2025&month=3", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report struct {
		Jurisdiction      string `json:"jurisdiction"`
		TaxYear           int    `json:"tax_year"`
		Gross             int64  `json:"gross"`
		TotalEmployerCost int64  `json:"total_employer_cost"`
		Lines             []struct {
			Subject string `json:"subject"`
		} `json:"lines"`
	}
	decodeBody(t, rec, &report)
	assert.Equal(t, "se", report.Jurisdiction)
	assert.Equal(t, 2025, report.TaxYear)
	assert.Equal(t, int64(3_000_000), report.Gross)
	assert.Equal(t, int64(3_942_600), report.TotalEmployerCost)
	require.Len(t, report.Lines, 1)
	assert.Equal(t, "emp-1", report.Lines[0].Subject)
}

func TestAPI_Payrun(t *testing.T) {
	// GIVEN: Three draft periods, one for a subject with no structure
	// WHEN: Posting a payrun
	// THEN: Two succeed, one fails, all reported per period

	ts := newTestServer(t)
	ts.seed(t, "emp-1")
	ts.seed(t, "emp-2")
	ids := []string{
		ts.createPeriod(t, "emp-1"),
		ts.createPeriod(t, "emp-2"),
		ts.createPeriod(t, "emp-3"), // no structure
	}

	rec := ts.do(t, http.MethodPost, "/api/payrun", map[string]any{"period_ids": ids})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Total   int `json:"total"`
		Failed  int `json:"failed"`
		Results []struct {
			PeriodID string `json:"period_id"`
			Status   string `json:"status"`
			Error    string `json:"error"`
		} `json:"results"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "calculated", resp.Results[0].Status)
	assert.NotEmpty(t, resp.Results[2].Error)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_ErrorStatusMapping(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "emp-1")
	id := ts.createPeriod(t, "emp-1")

	t.Run("approve draft is 409", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/periods/"+id+"/approve",
			map[string]string{"approver": "manager-1"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing period is 404", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/periods/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("overlapping structure is 422", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/structures", map[string]any{
			"id": "s-emp-1-dup", "subject": "emp-1", "kind": "fixed_salary",
			"base_amount": 1, "currency": "SEK", "cadence": "monthly",
			"effective_start": "2025-06-01",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("duplicate period is 422", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/periods", map[string]any{
			"subject": "emp-1", "jurisdiction": "se",
			"start": "2025-03-01", "end": "2025-03-31", "payment_date": "2025-03-25",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("malformed dates are 400", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/periods", map[string]any{
			"subject": "emp-9", "jurisdiction": "se",
			"start": "March 1st", "end": "2025-03-31", "payment_date": "2025-03-25",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing approver is 400", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/periods/"+id+"/approve", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("incomplete report window is 409", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet,
			"/api/reports?jurisdiction=se&subjects=emp-1&year=2025&month=3", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestAPI_ActiveStructureLookup(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "emp-1")

	rec := ts.do(t, http.MethodGet, "/api/structures/active/emp-1?date=2025-06-15", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/structures/active/emp-1?date=2024-06-15", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_ContextFieldsParsed(t *testing.T) {
	// GIVEN: A structure with an overtime component
	// WHEN: Creating a period with decimal-string hours in the request
	// THEN: Calculation picks the overtime up from the snapshot

	ts := newTestServer(t)
	require.NoError(t, ts.store.SaveConfig(context.Background(),
		factory.FlatEmployerFeeJurisdiction("se", "Sweden", "SEK", "0.3142",
			time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))))

	rec := ts.do(t, http.MethodPost, "/api/structures", map[string]any{
		"id": "s-emp-1", "subject": "emp-1", "kind": "mixed",
		"base_amount": 3_000_000, "currency": "SEK", "cadence": "monthly",
		"effective_start": "2025-01-01",
		"components": []map[string]any{
			{"name": "overtime", "kind": "bonus", "method": "rate_per_hour",
				"amount": 750, "overtime_hours": true,
				"conditions": []map[string]any{
					{"kind": "threshold", "metric": "overtime_hours", "op": "gt", "threshold": "0"},
				}},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/periods", map[string]any{
		"subject": "emp-1", "jurisdiction": "se",
		"start": "2025-03-01", "end": "2025-03-31", "payment_date": "2025-03-25",
		"overtime_hours": "5",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &created)

	rec = ts.do(t, http.MethodPost, "/api/periods/"+created.ID+"/calculate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var period struct {
		Gross int64 `json:"gross"`
		Items []struct {
			Name   string `json:"name"`
			Amount int64  `json:"amount"`
		} `json:"items"`
	}
	decodeBody(t, rec, &period)
	assert.Equal(t, int64(3_003_750), period.Gross)
	require.Len(t, period.Items, 1)
	assert.Equal(t, "overtime", period.Items[0].Name)
	assert.Equal(t, int64(3_750), period.Items[0].Amount)
}
