package insights

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/respira/insights/internal/domain/dataset"
)

const testExport = `{"data":{"result":[
	{"id":"p1","sex":"F","age":34,"height":1.65,"weight":60,
	 "createdAt":"2025-03-05T00:00:00Z",
	 "symptomDiaries":[{"createdAt":"2025-03-06T00:00:00Z"}],
	 "activityLogs":[{"createdAt":"2025-03-06T00:00:00Z","steps":1000}],
	 "acqs":[{"createdAt":"2025-03-07T00:00:00Z","average":1.5,"controlStatus":"controlled"}]},
	{"id":"p2","sex":"M","age":50,"createdAt":"2025-03-10T00:00:00Z"},
	{"id":"old","createdAt":"2025-01-01T00:00:00Z"}
]}}`

func newTestSetup(t *testing.T, ingest bool) (*Handler, *echo.Echo) {
	t.Helper()
	cutoff := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	dataSvc := dataset.NewService(dataset.NewStore(), nil, dataset.NewNormalizer(nil), cutoff)
	if ingest {
		if _, err := dataSvc.Ingest(context.Background(), strings.NewReader(testExport)); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 10, 8, 0, 0, 0, 0, time.UTC)
	svc := NewService(dataSvc, start, end, 45)
	return NewHandler(svc), echo.New()
}

func get(h *Handler, e *echo.Echo, fn func(echo.Context) error, path string) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, fn(c)
}

func TestHandler_NoDatasetConflict(t *testing.T) {
	h, e := newTestSetup(t, false)
	_, err := get(h, e, h.GetOverview, "/")
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409 before any upload, got %v", err)
	}
}

func TestHandler_GetReport(t *testing.T) {
	h, e := newTestSetup(t, true)
	rec, err := get(h, e, h.GetReport, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var r Report
	if err := json.Unmarshal(rec.Body.Bytes(), &r); err != nil {
		t.Fatalf("invalid report body: %v", err)
	}
	if r.Overview.CohortSize != 2 {
		t.Errorf("expected cohort of 2 (cutoff applied), got %d", r.Overview.CohortSize)
	}
}

func TestHandler_GetOverview(t *testing.T) {
	h, e := newTestSetup(t, true)
	rec, err := get(h, e, h.GetOverview, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var o Overview
	json.Unmarshal(rec.Body.Bytes(), &o)
	if o.CohortSize != 2 || o.MeanAge != 42 {
		t.Errorf("unexpected overview: %+v", o)
	}
}

func TestHandler_GetWeekly(t *testing.T) {
	h, e := newTestSetup(t, true)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("collection")
	c.SetParamValues("activities")
	if err := h.GetWeekly(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var wr WeeklyReport
	if err := json.Unmarshal(rec.Body.Bytes(), &wr); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(wr.Weeks) != 1 || wr.Weeks[0].TotalPayload != 1000 {
		t.Errorf("unexpected weekly rows: %+v", wr.Weeks)
	}
}

func TestHandler_GetWeekly_UnknownCollection(t *testing.T) {
	h, e := newTestSetup(t, true)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("collection")
	c.SetParamValues("bogus")
	err := h.GetWeekly(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown collection, got %v", err)
	}
}

func TestHandler_GetPatients_AgeFilterAndPaging(t *testing.T) {
	h, e := newTestSetup(t, true)
	rec, err := get(h, e, h.GetPatients, "/?min_age=40&max_age=60&limit=10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data  []PatientRow `json:"data"`
		Total int          `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 || resp.Data[0].ID != "p2" {
		t.Errorf("unexpected patient page: %+v", resp)
	}
}

func TestHandler_GetDailySteps(t *testing.T) {
	h, e := newTestSetup(t, true)
	req := httptest.NewRequest(http.MethodGet, "/?year=2025&month=3", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("p1")
	if err := h.GetDailySteps(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rows []DayRow
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(rows) != 31 || rows[5].Payload != 1000 {
		t.Errorf("unexpected daily rows, day6=%+v", rows[5])
	}
}

func TestHandler_GetDailySteps_UnknownPatient(t *testing.T) {
	h, e := newTestSetup(t, true)
	req := httptest.NewRequest(http.MethodGet, "/?year=2025&month=3", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("ghost")
	err := h.GetDailySteps(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_GetMetricSummary(t *testing.T) {
	h, e := newTestSetup(t, true)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("metric")
	c.SetParamValues("age")
	if err := h.GetMetricSummary(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var s Summary
	json.Unmarshal(rec.Body.Bytes(), &s)
	if s.Count != 2 || s.Mean != 42 {
		t.Errorf("unexpected summary: %+v", s)
	}
}

func TestHandler_GetMetricSummary_Unknown(t *testing.T) {
	h, e := newTestSetup(t, true)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("metric")
	c.SetParamValues("shoe_size")
	err := h.GetMetricSummary(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown metric, got %v", err)
	}
}

func TestHandler_GetCorrelation(t *testing.T) {
	h, e := newTestSetup(t, true)
	rec, err := get(h, e, h.GetCorrelation, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var groups []CorrelationGroup
	if err := json.Unmarshal(rec.Body.Bytes(), &groups); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	// One patient per sex: both sub-groups refuse.
	if !groups[1].Insufficient || !groups[2].Insufficient {
		t.Errorf("expected per-sex refusals: %+v", groups)
	}
}
