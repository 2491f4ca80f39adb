package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soltixdb/pvratio/internal/analytics/powerratio"
	"github.com/soltixdb/pvratio/internal/config"
	"github.com/soltixdb/pvratio/internal/logging"
	"github.com/soltixdb/pvratio/internal/queue"
	"github.com/soltixdb/pvratio/internal/tables"
)

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, []byte) error {
	return errors.New("broker down")
}

func (failingPublisher) PublishBatch(context.Context, []queue.BatchMessage) (int, error) {
	return 0, errors.New("broker down")
}

func (failingPublisher) Close() error { return nil }

func newTestService(t *testing.T, pub queue.Publisher) *AnalysisService {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Analysis.WindowSize = 2
	cfg.Analysis.FaultMultiplier = 1
	svc, err := NewAnalysisService(logging.NewNop(), cfg, pub)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

// A and C produce as predicted, B at half of it.
func testRecords() []powerratio.Record {
	base := time.Date(2020, 5, 15, 6, 0, 0, 0, time.UTC)
	var out []powerratio.Record
	for i := range 6 {
		ts := base.Add(time.Duration(i) * 15 * time.Minute)
		out = append(out,
			powerratio.Record{Time: ts, EntityID: "A", Actual: powerratio.Float(100), Predicted: 100},
			powerratio.Record{Time: ts, EntityID: "B", Actual: powerratio.Float(50), Predicted: 100},
			powerratio.Record{Time: ts, EntityID: "C", Actual: powerratio.Float(100), Predicted: 100},
		)
	}
	return out
}

func TestServiceError(t *testing.T) {
	err := NewServiceErrorWithDetails(CodeRunNotFound, "analysis run not found", map[string]interface{}{"run_id": "x"})
	assert.Equal(t, "analysis run not found", err.Error())

	data, jerr := json.Marshal(err)
	require.NoError(t, jerr)
	assert.JSONEq(t, `{"code":"RUN_NOT_FOUND","message":"analysis run not found","details":{"run_id":"x"}}`, string(data))

	assert.Nil(t, NewServiceError(CodeInternal, "boom").Details)
}

func TestRunNotFound(t *testing.T) {
	err := runNotFound("run-1")
	assert.Equal(t, CodeRunNotFound, err.Code)
	assert.Equal(t, "run-1", err.Details["run_id"])

	svc := newTestService(t, queue.NewMemoryPublisher())
	_, getErr := svc.Get("run-1")
	assert.Equal(t, err, getErr)
	assert.Equal(t, err, svc.Delete("run-1"))
}

func TestRun_PublishesAlerts(t *testing.T) {
	pub := queue.NewMemoryPublisher()
	svc := newTestService(t, pub)

	run, err := svc.Run(context.Background(), AnalyzeRequest{Records: testRecords()})
	require.NoError(t, err)

	assert.Equal(t, SourceRecords, run.Source)
	assert.Equal(t, []string{"A", "B", "C"}, run.Result.Entities)
	assert.Len(t, run.Result.Maintenance, 6)
	require.Len(t, run.Result.Faults.Faulty, 1)
	assert.Equal(t, "B", run.Result.Faults.Faulty[0].EntityID)
	assert.Equal(t, AlertStats{Published: 2}, run.Alerts)

	maint := pub.Messages("pvratio.alerts.maintenance")
	require.Len(t, maint, 1)
	var alert MaintenanceAlert
	require.NoError(t, json.Unmarshal(maint[0].Data, &alert))
	assert.Equal(t, run.ID, alert.RunID)
	assert.Equal(t, "B", alert.EntityID)
	assert.Equal(t, 6, alert.Flags)
	assert.InDelta(t, 0.5, alert.MinSmoothedRatio.Float(), 1e-6)
	assert.Equal(t, 0.85, alert.Threshold)

	faults := pub.Messages("pvratio.alerts.fault")
	require.Len(t, faults, 1)
	var fault FaultAlert
	require.NoError(t, json.Unmarshal(faults[0].Data, &fault))
	assert.Equal(t, "B", fault.EntityID)
	assert.True(t, fault.PowerOutlier)
	assert.True(t, fault.RatioOutlier)
}

func TestRun_PublishFailureDoesNotFailRun(t *testing.T) {
	svc := newTestService(t, failingPublisher{})

	run, err := svc.Run(context.Background(), AnalyzeRequest{Records: testRecords()})
	require.NoError(t, err)
	assert.Equal(t, 0, run.Alerts.Published)
	assert.Equal(t, 2, run.Alerts.Failed)
	assert.Contains(t, run.Alerts.Error, "broker down")

	_, err = svc.Get(run.ID)
	assert.NoError(t, err)
}

func TestRun_NilPublisher(t *testing.T) {
	svc := newTestService(t, nil)
	run, err := svc.Run(context.Background(), AnalyzeRequest{Records: testRecords()})
	require.NoError(t, err)
	assert.Equal(t, AlertStats{}, run.Alerts)
}

func TestResolveParams(t *testing.T) {
	svc := newTestService(t, nil)

	w := 5
	threshold := 0.9
	mode := "sentinel"
	sentinel := -1.0
	p, err := svc.ResolveParams(ParamOverrides{
		WindowSize:        &w,
		CleaningThreshold: &threshold,
		NonFinitePolicy:   &mode,
		Sentinel:          &sentinel,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, p.WindowSize)
	assert.Equal(t, 0.9, p.CleaningThreshold)
	assert.Equal(t, 1.0, p.FaultMultiplier)
	assert.Equal(t, powerratio.NonFiniteSentinel, p.NonFinite.Mode)
	assert.Equal(t, -1.0, p.NonFinite.Sentinel)

	tests := []struct {
		name string
		o    ParamOverrides
	}{
		{"window zero", ParamOverrides{WindowSize: ptr(0)}},
		{"threshold low", ParamOverrides{CleaningThreshold: ptr(0.4)}},
		{"multiplier high", ParamOverrides{FaultMultiplier: ptr(5.5)}},
		{"unknown policy", ParamOverrides{NonFinitePolicy: ptr("drop")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ResolveParams(tt.o)
			var svcErr *ServiceError
			require.ErrorAs(t, err, &svcErr)
			assert.Equal(t, CodeInvalidParams, svcErr.Code)
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestRun_RejectsMissingEntity(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.Run(context.Background(), AnalyzeRequest{
		Records: []powerratio.Record{{Time: time.Now(), Predicted: 1}},
	})
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, CodeInvalidRequest, svcErr.Code)
	assert.Empty(t, svc.List())
}

func uploadCSVs() (string, string) {
	var gen, weather strings.Builder
	gen.WriteString("DATE_TIME,PLANT_ID,SOURCE_KEY,DC_POWER,AC_POWER,DAILY_YIELD,TOTAL_YIELD\n")
	weather.WriteString("DATE_TIME,PLANT_ID,SOURCE_KEY,AMBIENT_TEMPERATURE,MODULE_TEMPERATURE,IRRADIATION\n")
	base := time.Date(2020, 5, 15, 6, 0, 0, 0, time.UTC)
	for i := range 24 {
		ts := base.Add(time.Duration(i) * 15 * time.Minute)
		irr := float64(i%6) / 6
		fmt.Fprintf(&weather, "%s,P1,sensor,%g,%g,%g\n", ts.Format("2006-01-02 15:04:05"), 24+float64(i%3), 30+float64(i%4), irr)
		fmt.Fprintf(&gen, "%s,P1,inv-1,%g,0,0,0\n", ts.Format("02-01-2006 15:04"), 1000*irr)
		fmt.Fprintf(&gen, "%s,P1,inv-2,%g,0,0,0\n", ts.Format("02-01-2006 15:04"), 900*irr)
	}
	return gen.String(), weather.String()
}

func TestRun_Upload(t *testing.T) {
	svc := newTestService(t, queue.NewMemoryPublisher())
	gen, weather := uploadCSVs()

	run, err := svc.Run(context.Background(), AnalyzeRequest{
		Generation: strings.NewReader(gen),
		Weather:    strings.NewReader(weather),
	})
	require.NoError(t, err)

	assert.Equal(t, SourceUpload, run.Source)
	require.NotNil(t, run.Ingestion)
	assert.Equal(t, 48, run.Ingestion.Generation.Parsed)
	assert.Equal(t, 24, run.Ingestion.Weather.Parsed)
	assert.Equal(t, 48, run.Ingestion.MergedRows)
	require.NotNil(t, run.Model)
	assert.Equal(t, 48, run.Model.Samples)
	assert.Equal(t, []string{"inv-1", "inv-2"}, run.Result.Entities)
}

func TestRun_UploadErrors(t *testing.T) {
	svc := newTestService(t, nil)
	gen, weather := uploadCSVs()

	_, err := svc.Run(context.Background(), AnalyzeRequest{Generation: strings.NewReader(gen)})
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, CodeInvalidRequest, svcErr.Code)

	_, err = svc.Run(context.Background(), AnalyzeRequest{
		Generation: strings.NewReader("DATE_TIME\n"),
		Weather:    strings.NewReader(weather),
	})
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, CodeIngestFailed, svcErr.Code)

	// plants do not match
	_, err = svc.Run(context.Background(), AnalyzeRequest{
		Generation: strings.NewReader(strings.ReplaceAll(gen, ",P1,", ",P2,")),
		Weather:    strings.NewReader(weather),
	})
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, CodeIngestFailed, svcErr.Code)
}

func TestGetListDelete(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	first, err := svc.Run(ctx, AnalyzeRequest{Records: testRecords()})
	require.NoError(t, err)
	second, err := svc.Run(ctx, AnalyzeRequest{Records: testRecords()})
	require.NoError(t, err)

	runs := svc.List()
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)

	require.NoError(t, svc.Delete(first.ID))
	_, err = svc.Get(first.ID)
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, CodeRunNotFound, svcErr.Code)
	assert.Error(t, svc.Delete(first.ID))
}

func TestSmoothed_FilterAndSample(t *testing.T) {
	svc := newTestService(t, nil)
	run, err := svc.Run(context.Background(), AnalyzeRequest{Records: testRecords()})
	require.NoError(t, err)

	all, err := svc.Smoothed(run.ID, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 18)

	onlyB, err := svc.Smoothed(run.ID, "B", 0)
	require.NoError(t, err)
	require.Len(t, onlyB, 6)
	for _, r := range onlyB {
		assert.Equal(t, "B", r.EntityID)
	}

	s1, err := svc.Smoothed(run.ID, "", 5)
	require.NoError(t, err)
	s2, err := svc.Smoothed(run.ID, "", 5)
	require.NoError(t, err)
	assert.Len(t, s1, 5)
	assert.Equal(t, s1, s2)

	byDefault, err := svc.Smoothed(run.ID, "", -1)
	require.NoError(t, err)
	assert.Len(t, byDefault, 18)
}

func TestMetrics(t *testing.T) {
	svc := newTestService(t, nil)
	run, err := svc.Run(context.Background(), AnalyzeRequest{Records: testRecords()})
	require.NoError(t, err)

	m, err := svc.Metrics(run.ID)
	require.NoError(t, err)
	assert.Equal(t, 18, m.Performance.Records)
	assert.InDelta(t, 250.0/3, m.Performance.AverageOutput, 1e-9)
	assert.Equal(t, 100.0, m.Performance.PeakOutput)
	require.Len(t, m.Daily, 1)
	assert.Equal(t, []string{"A", "B", "C"}, m.Heatmap.Entities)
}

func TestExport(t *testing.T) {
	svc := newTestService(t, nil)
	run, err := svc.Run(context.Background(), AnalyzeRequest{Records: testRecords()})
	require.NoError(t, err)

	var buf bytes.Buffer
	f, err := svc.Export(&buf, run.ID, "maintenance", "json")
	require.NoError(t, err)
	assert.Equal(t, tables.FormatJSON, f)

	rows, err := tables.Maintenance.Read(&buf, f)
	require.NoError(t, err)
	assert.Equal(t, run.Result.Maintenance, tables.MaintenanceFlags(rows))

	var svcErr *ServiceError
	_, err = svc.Export(&bytes.Buffer{}, run.ID, "heatmap", "csv")
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, CodeUnknownTable, svcErr.Code)

	_, err = svc.Export(&bytes.Buffer{}, run.ID, "faults", "xml")
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, CodeInvalidFormat, svcErr.Code)

	_, err = svc.Export(&bytes.Buffer{}, "missing", "faults", "csv")
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, CodeRunNotFound, svcErr.Code)
}
