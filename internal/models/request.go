package models

import (
	"errors"
	"fmt"

	"github.com/soltixdb/pvratio/internal/analytics/powerratio"
	"github.com/soltixdb/pvratio/internal/ingest"
)

// MaxRecordsPerRequest bounds the records accepted in one JSON request
const MaxRecordsPerRequest = 1_000_000

// RecordInput is one annotated measurement
type RecordInput struct {
	Time     string   `json:"time"`
	EntityID string   `json:"entity_id"`
	Actual   *float64 `json:"actual"` // null or absent means missing
	// Predicted is required; zero is a valid prediction.
	Predicted *float64 `json:"predicted"`
}

// ParamsInput overrides the configured analysis defaults
type ParamsInput struct {
	WindowSize        *int     `json:"window_size,omitempty"`
	CleaningThreshold *float64 `json:"cleaning_threshold,omitempty"`
	FaultMultiplier   *float64 `json:"fault_multiplier,omitempty"`
	NonFinitePolicy   *string  `json:"non_finite_policy,omitempty"`
	Sentinel          *float64 `json:"sentinel,omitempty"`
}

// AnalyzeRequest represents an analysis request with inline records
type AnalyzeRequest struct {
	Records []RecordInput `json:"records"`
	Params  ParamsInput   `json:"params"`
}

// Validate checks the request shape. Per-record errors are reported by
// ToRecords.
func (r *AnalyzeRequest) Validate() error {
	if len(r.Records) == 0 {
		return errors.New("records must not be empty")
	}
	if len(r.Records) > MaxRecordsPerRequest {
		return fmt.Errorf("too many records: %d (max %d)", len(r.Records), MaxRecordsPerRequest)
	}
	return nil
}

// ToRecords parses the records into core records
func (r *AnalyzeRequest) ToRecords() ([]powerratio.Record, error) {
	out := make([]powerratio.Record, len(r.Records))
	for i, in := range r.Records {
		ts, err := ingest.ParseTime(in.Time)
		if err != nil {
			return nil, fmt.Errorf("records[%d]: %w", i, err)
		}
		if in.EntityID == "" {
			return nil, fmt.Errorf("records[%d]: entity_id is required", i)
		}
		if in.Predicted == nil {
			return nil, fmt.Errorf("records[%d]: predicted is required", i)
		}
		out[i] = powerratio.Record{
			Time:      ts,
			EntityID:  in.EntityID,
			Actual:    in.Actual,
			Predicted: *in.Predicted,
		}
	}
	return out, nil
}
