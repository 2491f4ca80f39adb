package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/soltixdb/pvratio/internal/analytics/powerratio"
	"github.com/soltixdb/pvratio/internal/queue"
	"github.com/soltixdb/pvratio/internal/tables"
)

// Alert subject suffixes, appended to the configured prefix
const (
	MaintenanceSubject = "maintenance"
	FaultSubject       = "fault"
)

// MaintenanceAlert asks for one entity to be cleaned.
type MaintenanceAlert struct {
	RunID            string       `json:"run_id"`
	EntityID         string       `json:"entity_id"`
	Flags            int          `json:"flags"`
	FirstFlaggedAt   time.Time    `json:"first_flagged_at"`
	LastFlaggedAt    time.Time    `json:"last_flagged_at"`
	MinSmoothedRatio tables.Value `json:"min_smoothed_ratio"`
	Threshold        float64      `json:"threshold"`
}

// FaultAlert reports an entity that deviates from its peers.
type FaultAlert struct {
	RunID          string       `json:"run_id"`
	EntityID       string       `json:"entity_id"`
	PowerMean      tables.Value `json:"power_mean"`
	RatioMean      tables.Value `json:"ratio_mean"`
	PowerDeviation tables.Value `json:"power_deviation"`
	RatioDeviation tables.Value `json:"ratio_deviation"`
	PowerOutlier   bool         `json:"power_outlier"`
	RatioOutlier   bool         `json:"ratio_outlier"`
	Multiplier     float64      `json:"multiplier"`
}

func (s *AnalysisService) subject(suffix string) string {
	if s.subjectPrefix == "" {
		return suffix
	}
	return s.subjectPrefix + "." + suffix
}

// alertMessages builds one message per maintenance entity and per faulty
// entity of run
func (s *AnalysisService) alertMessages(run *Run) ([]queue.BatchMessage, error) {
	res := run.Result
	var msgs []queue.BatchMessage

	for _, m := range powerratio.SummarizeMaintenance(res.Maintenance) {
		data, err := json.Marshal(MaintenanceAlert{
			RunID:            run.ID,
			EntityID:         m.EntityID,
			Flags:            m.Flags,
			FirstFlaggedAt:   m.FirstFlagAt,
			LastFlaggedAt:    m.LastFlagAt,
			MinSmoothedRatio: tables.Value(m.MinRatio),
			Threshold:        res.Params.CleaningThreshold,
		})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, queue.BatchMessage{Subject: s.subject(MaintenanceSubject), Data: data})
	}

	for _, f := range res.Faults.Faulty {
		data, err := json.Marshal(FaultAlert{
			RunID:          run.ID,
			EntityID:       f.EntityID,
			PowerMean:      tables.Value(f.PowerMean),
			RatioMean:      tables.Value(f.RatioMean),
			PowerDeviation: tables.Value(f.PowerDeviation),
			RatioDeviation: tables.Value(f.RatioDeviation),
			PowerOutlier:   f.PowerOutlier,
			RatioOutlier:   f.RatioOutlier,
			Multiplier:     res.Faults.Multiplier,
		})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, queue.BatchMessage{Subject: s.subject(FaultSubject), Data: data})
	}

	return msgs, nil
}

// publishAlerts sends the alerts of run and logs any failure
func (s *AnalysisService) publishAlerts(ctx context.Context, run *Run) AlertStats {
	var stats AlertStats
	if s.publisher == nil {
		return stats
	}
	logger := s.logger.WithContext(ctx)

	msgs, err := s.alertMessages(run)
	if err != nil {
		logger.Error("Failed to encode alerts", "error", err)
		stats.Error = err.Error()
		return stats
	}
	if len(msgs) == 0 {
		return stats
	}

	// Runs finish even when the request context is gone
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.alertTimeout)
	defer cancel()

	n, err := s.publisher.PublishBatch(pubCtx, msgs)
	stats.Published = n
	stats.Failed = len(msgs) - n
	if err != nil {
		stats.Error = err.Error()
		logger.Warn("Failed to publish alerts",
			"error", err,
			"published", n,
			"total", len(msgs),
		)
		return stats
	}

	logger.Debug("Alerts published", "count", n)
	return stats
}
