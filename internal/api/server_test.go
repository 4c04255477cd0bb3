package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cropsense/farmops/internal/config"
	"github.com/cropsense/farmops/internal/model"
	"github.com/cropsense/farmops/internal/pipeline"
	"github.com/cropsense/farmops/internal/store"
)

func cannedReport() *model.DiagnosisReport {
	return &model.DiagnosisReport{
		AnalysisID: "analysis-123",
		Timestamp:  time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		CropType:   "tomato",
		Disease: model.DiseaseCandidate{
			Name:            "Bacterial Leaf Spot",
			Confidence:      model.ConfidenceMedium,
			ConfidenceScore: 0.75,
			Symptoms:        []string{"leaf spots"},
			AffectedParts:   []string{"leaves"},
			Severity:        model.SeverityModerate,
		},
		OverallConfidence: 0.7,
		TaskIDs:           []string{},
		IntegrationStatus: model.IntegrationPending,
	}
}

func TestDiagnosisEndpoint_ReturnsEnvelope(t *testing.T) {
	runner := &stubRunner{report: cannedReport()}
	h := NewServer(runner, &mockStore{}).Routes()

	payload := map[string]string{
		"crop_type":     "tomato",
		"symptoms_text": "brown spots with yellow halos",
	}
	body, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPost, "/api/diagnosis", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var resp model.AnalysisResponse
	err := json.Unmarshal(rr.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "analysis-123", resp.AnalysisID)
	require.NotNil(t, resp.Report)
	assert.Equal(t, "Bacterial Leaf Spot", resp.Report.Disease.Name)

	require.NotNil(t, runner.lastReq)
	assert.Equal(t, "tomato", runner.lastReq.CropType)
	assert.Equal(t, "brown spots with yellow halos", runner.lastReq.SymptomsText)
}

func TestDiagnosisEndpoint_InvalidJSON(t *testing.T) {
	h := NewServer(&stubRunner{report: cannedReport()}, &mockStore{}).Routes()

	req := httptest.NewRequest(http.MethodPost, "/api/diagnosis", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "bad json")
}

func TestDiagnosisEndpoint_MissingCropType(t *testing.T) {
	h := NewServer(&stubRunner{report: cannedReport()}, &mockStore{}).Routes()

	req := httptest.NewRequest(http.MethodPost, "/api/diagnosis", bytes.NewReader([]byte(`{"symptoms_text":"spots"}`)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "crop_type is required")
}

func TestListReports_PassesPagingToStore(t *testing.T) {
	st := &mockStore{}
	st.On("ListReports", mock.Anything, 7, 2, 5).Return([]model.ReportSummary{
		{ID: "r1", Title: "Disease Analysis - Tomato", CropType: "tomato", Disease: "Bacterial Leaf Spot", Confidence: 0.74},
	}, 12, nil).Once()

	h := NewServer(&stubRunner{}, st).Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/reports?actor_id=7&page=2&page_size=5", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp listReportsResponse
	err := json.Unmarshal(rr.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, 12, resp.Total)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 5, resp.PageSize)
	require.Len(t, resp.Reports, 1)
	assert.Equal(t, "r1", resp.Reports[0].ID)

	st.AssertExpectations(t)
}

func TestListReports_ClampsPaging(t *testing.T) {
	st := &mockStore{}
	st.On("ListReports", mock.Anything, 0, 1, store.MaxPageSize).Return([]model.ReportSummary{}, 0, nil).Once()

	h := NewServer(&stubRunner{}, st).Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/reports?page=0&page_size=500", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	st.AssertExpectations(t)
}

func TestListReports_StoreError(t *testing.T) {
	st := &mockStore{}
	st.On("ListReports", mock.Anything, 0, 1, store.DefaultPageSize).
		Return([]model.ReportSummary(nil), 0, errors.New("connection refused")).Once()

	h := NewServer(&stubRunner{}, st).Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestGetReport_Found(t *testing.T) {
	st := &mockStore{}
	st.On("GetReport", mock.Anything, "r1").Return(&model.StoredReport{
		ID:       "r1",
		Title:    "Disease Analysis - Tomato",
		CropType: "tomato",
		Report:   cannedReport(),
	}, nil).Once()

	h := NewServer(&stubRunner{}, st).Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/reports/r1", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var rec model.StoredReport
	err := json.Unmarshal(rr.Body.Bytes(), &rec)
	require.NoError(t, err)
	assert.Equal(t, "r1", rec.ID)
	require.NotNil(t, rec.Report)
	assert.Equal(t, "Bacterial Leaf Spot", rec.Report.Disease.Name)
}

func TestGetReport_NotFound(t *testing.T) {
	st := &mockStore{}
	st.On("GetReport", mock.Anything, "missing").Return(nil, nil).Once()

	h := NewServer(&stubRunner{}, st).Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/reports/missing", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "not found")
}

func TestStatsEndpoint_ScopesToActor(t *testing.T) {
	st := &mockStore{}
	st.On("Stats", mock.Anything, 7).Return(&model.ReportStats{
		TotalAnalyses: 4,
		AvgConfidence: 0.71,
		CropCounts:    map[string]int{"tomato": 3, "chili": 1},
	}, nil).Once()

	h := NewServer(&stubRunner{}, st).Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/reports/stats?actor_id=7", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var stats model.ReportStats
	err := json.Unmarshal(rr.Body.Bytes(), &stats)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalAnalyses)
	assert.InDelta(t, 0.71, stats.AvgConfidence, 1e-9)
	assert.Equal(t, 3, stats.CropCounts["tomato"])

	st.AssertExpectations(t)
}

func TestHealthEndpoint(t *testing.T) {
	st := &mockStore{}
	st.On("Ping", mock.Anything).Return(nil).Once()

	h := NewServer(&stubRunner{}, st).Routes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	err := json.Unmarshal(rr.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "ok", body["status"])
}

func TestHealthEndpoint_StoreDown(t *testing.T) {
	st := &mockStore{}
	st.On("Ping", mock.Anything).Return(errors.New("dial tcp: refused")).Once()

	h := NewServer(&stubRunner{}, st).Routes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

// TestDiagnosisFlow_OfflineClients drives the real pipeline with stub
// capability clients through the HTTP surface and checks the persisted report
// shows up in the listing.
func TestDiagnosisFlow_OfflineClients(t *testing.T) {
	cfg := &config.Config{
		Anthropic: config.AnthropicConfig{
			Model:       "claude-sonnet-4-5-20250929",
			VisionModel: "claude-sonnet-4-5-20250929",
			MaxTokens:   2048,
		},
		Diagnosis: config.DiagnosisConfig{SearchConcurrency: 2, StageTimeoutSecs: 30},
	}
	st := &pipeline.StubFarmStore{}
	p := pipeline.New(cfg, st, &pipeline.StubCompletionClient{}, &pipeline.StubSearchClient{}, nil)
	h := NewServer(p, st).Routes()

	body := []byte(`{"crop_type":"tomato","symptoms_text":"leaf spots spreading upward"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/diagnosis", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp model.AnalysisResponse
	err := json.Unmarshal(rr.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Status)
	require.NotNil(t, resp.Report)
	assert.Equal(t, "Bacterial Leaf Spot", resp.Report.Disease.Name)
	assert.NotEmpty(t, resp.Report.Summary)

	listReq := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	listRR := httptest.NewRecorder()
	h.ServeHTTP(listRR, listReq)

	require.Equal(t, http.StatusOK, listRR.Code)

	var listing listReportsResponse
	err = json.Unmarshal(listRR.Body.Bytes(), &listing)
	require.NoError(t, err)
	require.Len(t, listing.Reports, 1)
	assert.Equal(t, "Disease Analysis - Tomato", listing.Reports[0].Title)
	assert.Equal(t, "Bacterial Leaf Spot", listing.Reports[0].Disease)
}
