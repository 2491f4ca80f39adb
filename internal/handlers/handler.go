package handlers

import (
	"github.com/soltixdb/pvratio/internal/logging"
	"github.com/soltixdb/pvratio/internal/services"
)

// Version is reported by the health endpoint
var Version = "dev"

// Handler contains all HTTP handlers
type Handler struct {
	logger   *logging.Logger
	analysis *services.AnalysisService
}

// New creates a new handler instance
func New(logger *logging.Logger, analysis *services.AnalysisService) *Handler {
	return &Handler{
		logger:   logger,
		analysis: analysis,
	}
}
