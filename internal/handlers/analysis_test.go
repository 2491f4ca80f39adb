package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soltixdb/pvratio/internal/config"
	"github.com/soltixdb/pvratio/internal/logging"
	"github.com/soltixdb/pvratio/internal/models"
	"github.com/soltixdb/pvratio/internal/queue"
	"github.com/soltixdb/pvratio/internal/services"
	"github.com/soltixdb/pvratio/internal/tables"
)

func newTestApp(t *testing.T) (*fiber.App, *queue.MemoryPublisher) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Analysis.WindowSize = 2
	cfg.Analysis.FaultMultiplier = 1

	pub := queue.NewMemoryPublisher()
	svc, err := services.NewAnalysisService(logging.NewNop(), cfg, pub)
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	h := New(logging.NewNop(), svc)
	app := fiber.New()
	app.Get("/health", h.Health)
	app.Post("/v1/analyses", h.CreateAnalysis)
	app.Post("/v1/analyses/upload", h.UploadAnalysis)
	app.Get("/v1/analyses", h.ListAnalyses)
	app.Get("/v1/analyses/:id", h.GetAnalysis)
	app.Delete("/v1/analyses/:id", h.DeleteAnalysis)
	app.Get("/v1/analyses/:id/maintenance", h.GetMaintenance)
	app.Get("/v1/analyses/:id/faults", h.GetFaults)
	app.Get("/v1/analyses/:id/smoothed", h.GetSmoothed)
	app.Get("/v1/analyses/:id/metrics", h.GetMetrics)
	app.Get("/v1/analyses/:id/export/:table", h.ExportTable)
	return app, pub
}

// analyzeBody builds records where B produces half of its prediction.
func analyzeBody(params string) string {
	base := time.Date(2020, 5, 15, 6, 0, 0, 0, time.UTC)
	var recs []string
	for i := range 6 {
		ts := base.Add(time.Duration(i) * 15 * time.Minute).Format(time.RFC3339)
		recs = append(recs,
			fmt.Sprintf(`{"time":%q,"entity_id":"A","actual":100,"predicted":100}`, ts),
			fmt.Sprintf(`{"time":%q,"entity_id":"B","actual":50,"predicted":100}`, ts),
			fmt.Sprintf(`{"time":%q,"entity_id":"C","actual":100,"predicted":100}`, ts),
		)
	}
	return fmt.Sprintf(`{"records":[%s],"params":%s}`, strings.Join(recs, ","), params)
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string, out interface{}) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	if out != nil {
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, out), string(data))
	}
	return resp
}

func createRun(t *testing.T, app *fiber.App) models.RunResponse {
	t.Helper()
	var run models.RunResponse
	resp := doJSON(t, app, "POST", "/v1/analyses", analyzeBody("{}"), &run)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	return run
}

func TestCreateAnalysis(t *testing.T) {
	app, pub := newTestApp(t)
	run := createRun(t, app)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, services.SourceRecords, run.Source)
	assert.Equal(t, 18, run.Records)
	assert.Equal(t, 3, run.Entities)
	assert.Equal(t, 6, run.MaintenanceFlags)
	assert.Equal(t, 1, run.MaintenanceEntities)
	assert.Equal(t, 1, run.FaultyEntities)
	assert.Equal(t, 2, run.Params.WindowSize)
	assert.Equal(t, "exclude", run.Params.NonFinitePolicy)
	assert.Nil(t, run.Params.Sentinel)
	assert.Equal(t, 2, run.Alerts.Published)
	assert.Nil(t, run.Model)
	assert.Len(t, pub.Messages(""), 2)
}

func TestCreateAnalysis_Overrides(t *testing.T) {
	app, _ := newTestApp(t)

	var run models.RunResponse
	resp := doJSON(t, app, "POST", "/v1/analyses",
		analyzeBody(`{"cleaning_threshold":0.4,"non_finite_policy":"sentinel","sentinel":-1}`), &run)
	// 0.4 is outside [0.5, 1]
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, app, "POST", "/v1/analyses",
		analyzeBody(`{"cleaning_threshold":0.5,"non_finite_policy":"sentinel","sentinel":-1}`), &run)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, 0.5, run.Params.CleaningThreshold)
	// B sits just under 0.5 because of the epsilon in the denominator
	assert.Equal(t, 6, run.MaintenanceFlags)
	assert.Equal(t, "sentinel", run.Params.NonFinitePolicy)
	require.NotNil(t, run.Params.Sentinel)
	assert.Equal(t, -1.0, run.Params.Sentinel.Float())
}

func TestCreateAnalysis_BadRequests(t *testing.T) {
	app, _ := newTestApp(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"invalid json", `{"records":`, services.CodeInvalidRequest},
		{"no records", `{"records":[]}`, services.CodeInvalidRequest},
		{"bad time", `{"records":[{"time":"later","entity_id":"A","predicted":1}]}`, services.CodeInvalidRequest},
		{"bad window", analyzeBody(`{"window_size":0}`), services.CodeInvalidParams},
		{"bad policy", analyzeBody(`{"non_finite_policy":"drop"}`), services.CodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errResp models.ErrorResponse
			resp := doJSON(t, app, "POST", "/v1/analyses", tt.body, &errResp)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, errResp.Error.Code)
		})
	}
}

func TestRunViews(t *testing.T) {
	app, _ := newTestApp(t)
	run := createRun(t, app)
	base := "/v1/analyses/" + run.ID

	var got models.RunResponse
	resp := doJSON(t, app, "GET", base, "", &got)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"A", "B", "C"}, got.EntityIDs)

	var list models.RunListResponse
	doJSON(t, app, "GET", "/v1/analyses", "", &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, run.ID, list.Runs[0].ID)

	var maint models.MaintenanceResponse
	doJSON(t, app, "GET", base+"/maintenance", "", &maint)
	assert.Equal(t, 6, maint.Count)
	require.Len(t, maint.Entities, 1)
	assert.Equal(t, "B", maint.Entities[0].EntityID)
	assert.Equal(t, "2020-05-15T06:00:00Z", maint.Entities[0].FirstFlaggedAt)
	assert.Equal(t, "2020-05-15T07:15:00Z", maint.Entities[0].LastFlaggedAt)

	var faults models.FaultsResponse
	doJSON(t, app, "GET", base+"/faults", "", &faults)
	assert.Equal(t, []string{"B"}, faults.Faulty)
	assert.Len(t, faults.Entities, 3)
	assert.Equal(t, 3, faults.Population.Entities)

	var smoothed models.SmoothedResponse
	doJSON(t, app, "GET", base+"/smoothed?entity=A&sample=4", "", &smoothed)
	assert.Equal(t, 4, smoothed.Count)
	for _, r := range smoothed.Rows {
		assert.Equal(t, "A", r.EntityID)
	}

	var metrics models.MetricsResponse
	doJSON(t, app, "GET", base+"/metrics", "", &metrics)
	assert.Equal(t, 18, metrics.Performance.Records)
	assert.Equal(t, 100.0, metrics.Performance.PeakOutput.Float())
	require.Len(t, metrics.Daily, 1)
	assert.Equal(t, "2020-05-15", metrics.Daily[0].Day)
	assert.Equal(t, []string{"2020-05-15"}, metrics.Heatmap.Days)
}

func TestGetSmoothed_InvalidSample(t *testing.T) {
	app, _ := newTestApp(t)
	run := createRun(t, app)

	resp := doJSON(t, app, "GET", "/v1/analyses/"+run.ID+"/smoothed?sample=-3", "", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRunNotFound(t *testing.T) {
	app, _ := newTestApp(t)

	for _, path := range []string{
		"/v1/analyses/nope",
		"/v1/analyses/nope/maintenance",
		"/v1/analyses/nope/faults",
		"/v1/analyses/nope/smoothed",
		"/v1/analyses/nope/metrics",
		"/v1/analyses/nope/export/faults",
	} {
		var errResp models.ErrorResponse
		resp := doJSON(t, app, "GET", path, "", &errResp)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, path)
		assert.Equal(t, services.CodeRunNotFound, errResp.Error.Code, path)
	}
}

func TestDeleteAnalysis(t *testing.T) {
	app, _ := newTestApp(t)
	run := createRun(t, app)

	resp := doJSON(t, app, "DELETE", "/v1/analyses/"+run.ID, "", nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, app, "DELETE", "/v1/analyses/"+run.ID, "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestExportTable(t *testing.T) {
	app, _ := newTestApp(t)
	run := createRun(t, app)
	base := "/v1/analyses/" + run.ID + "/export/"

	resp, err := app.Test(httptest.NewRequest("GET", base+"maintenance", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "maintenance.csv")

	rows, err := tables.Maintenance.Read(resp.Body, tables.FormatCSV)
	require.NoError(t, err)
	assert.Len(t, rows, 6)

	resp, err = app.Test(httptest.NewRequest("GET", base+"faults?format=json.sz", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-snappy", resp.Header.Get("Content-Type"))
	faults, err := tables.Faults.Read(resp.Body, tables.FormatJSONSnappy)
	require.NoError(t, err)
	assert.Len(t, faults, 3)

	var errResp models.ErrorResponse
	r := doJSON(t, app, "GET", base+"heatmap", "", &errResp)
	assert.Equal(t, fiber.StatusNotFound, r.StatusCode)
	assert.Equal(t, services.CodeUnknownTable, errResp.Error.Code)

	r = doJSON(t, app, "GET", base+"faults?format=xml", "", &errResp)
	assert.Equal(t, fiber.StatusBadRequest, r.StatusCode)
	assert.Equal(t, services.CodeInvalidFormat, errResp.Error.Code)
}

func multipartBody(t *testing.T, files map[string]string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.CreateFormFile(name, name+".csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func plantCSVs() (string, string) {
	var gen, weather strings.Builder
	gen.WriteString("DATE_TIME,PLANT_ID,SOURCE_KEY,DC_POWER,AC_POWER,DAILY_YIELD,TOTAL_YIELD\n")
	weather.WriteString("DATE_TIME,PLANT_ID,SOURCE_KEY,AMBIENT_TEMPERATURE,MODULE_TEMPERATURE,IRRADIATION\n")
	base := time.Date(2020, 5, 15, 6, 0, 0, 0, time.UTC)
	for i := range 16 {
		ts := base.Add(time.Duration(i) * 15 * time.Minute)
		irr := float64(i%4) / 4
		fmt.Fprintf(&weather, "%s,P1,s,%g,%g,%g\n", ts.Format("2006-01-02 15:04:05"), 25+float64(i%3), 31+float64(i%5), irr)
		fmt.Fprintf(&gen, "%s,P1,inv-1,%g,0,0,0\n", ts.Format("02-01-2006 15:04"), 800*irr)
	}
	return gen.String(), weather.String()
}

func TestUploadAnalysis(t *testing.T) {
	app, _ := newTestApp(t)
	gen, weather := plantCSVs()

	body, contentType := multipartBody(t,
		map[string]string{"generation": gen, "weather": weather},
		map[string]string{"window_size": "4", "fault_multiplier": "2"},
	)
	req := httptest.NewRequest("POST", "/v1/analyses/upload", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(data))

	var run models.RunResponse
	require.NoError(t, json.Unmarshal(data, &run))
	assert.Equal(t, services.SourceUpload, run.Source)
	assert.Equal(t, 4, run.Params.WindowSize)
	assert.Equal(t, 2.0, run.Params.FaultMultiplier)
	require.NotNil(t, run.Ingestion)
	assert.Equal(t, 16, run.Ingestion.MergedRows)
	require.NotNil(t, run.Model)
	assert.Equal(t, 16, run.Model.Samples)
}

func TestUploadAnalysis_MissingFile(t *testing.T) {
	app, _ := newTestApp(t)
	gen, _ := plantCSVs()

	body, contentType := multipartBody(t, map[string]string{"generation": gen}, nil)
	req := httptest.NewRequest("POST", "/v1/analyses/upload", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestUploadAnalysis_BadField(t *testing.T) {
	app, _ := newTestApp(t)
	gen, weather := plantCSVs()

	body, contentType := multipartBody(t,
		map[string]string{"generation": gen, "weather": weather},
		map[string]string{"cleaning_threshold": "high"},
	)
	req := httptest.NewRequest("POST", "/v1/analyses/upload", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
