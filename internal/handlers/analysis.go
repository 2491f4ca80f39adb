package handlers

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/pvratio/internal/models"
	"github.com/soltixdb/pvratio/internal/services"
	"github.com/soltixdb/pvratio/internal/tables"
)

// CreateAnalysis handles POST /v1/analyses
// Runs an analysis over inline records and returns the run summary
func (h *Handler) CreateAnalysis(c *fiber.Ctx) error {
	var req models.AnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	records, err := req.ToRecords()
	if err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.analysis.Run(c.UserContext(), services.AnalyzeRequest{
		Records: records,
		Params:  overridesFromInput(req.Params),
	})
	if err != nil {
		return h.serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(runResponse(run))
}

// UploadAnalysis handles POST /v1/analyses/upload
// Accepts multipart "generation" and "weather" CSV files plus optional
// parameter form fields
func (h *Handler) UploadAnalysis(c *fiber.Ctx) error {
	overrides, err := overridesFromForm(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	gen, err := openFormFile(c, "generation")
	if err != nil {
		return badRequest(c, err.Error())
	}
	defer func() { _ = gen.Close() }()

	weather, err := openFormFile(c, "weather")
	if err != nil {
		return badRequest(c, err.Error())
	}
	defer func() { _ = weather.Close() }()

	run, err := h.analysis.Run(c.UserContext(), services.AnalyzeRequest{
		Generation: gen,
		Weather:    weather,
		Params:     overrides,
	})
	if err != nil {
		return h.serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(runResponse(run))
}

// ListAnalyses handles GET /v1/analyses
func (h *Handler) ListAnalyses(c *fiber.Ctx) error {
	runs := h.analysis.List()
	resp := models.RunListResponse{
		Runs:  make([]models.RunSummary, len(runs)),
		Count: len(runs),
	}
	for i, run := range runs {
		resp.Runs[i] = runSummary(run)
	}
	return c.JSON(resp)
}

// GetAnalysis handles GET /v1/analyses/:id
func (h *Handler) GetAnalysis(c *fiber.Ctx) error {
	run, err := h.analysis.Get(c.Params("id"))
	if err != nil {
		return h.serviceError(c, err)
	}
	return c.JSON(runResponse(run))
}

// DeleteAnalysis handles DELETE /v1/analyses/:id
func (h *Handler) DeleteAnalysis(c *fiber.Ctx) error {
	if err := h.analysis.Delete(c.Params("id")); err != nil {
		return h.serviceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetMaintenance handles GET /v1/analyses/:id/maintenance
func (h *Handler) GetMaintenance(c *fiber.Ctx) error {
	run, err := h.analysis.Get(c.Params("id"))
	if err != nil {
		return h.serviceError(c, err)
	}
	return c.JSON(maintenanceResponse(run))
}

// GetFaults handles GET /v1/analyses/:id/faults
func (h *Handler) GetFaults(c *fiber.Ctx) error {
	run, err := h.analysis.Get(c.Params("id"))
	if err != nil {
		return h.serviceError(c, err)
	}
	return c.JSON(faultsResponse(run))
}

// GetSmoothed handles GET /v1/analyses/:id/smoothed
// Query parameters: entity (optional), sample (0 = all rows, default = configured sample size)
func (h *Handler) GetSmoothed(c *fiber.Ctx) error {
	sample := -1
	if s := c.Query("sample"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return badRequest(c, "sample must be a non-negative integer")
		}
		sample = n
	}
	entity := c.Query("entity")

	rows, err := h.analysis.Smoothed(c.Params("id"), entity, sample)
	if err != nil {
		return h.serviceError(c, err)
	}

	return c.JSON(models.SmoothedResponse{
		RunID:  c.Params("id"),
		Entity: entity,
		Count:  len(rows),
		Rows:   tables.SmoothedRows(rows),
	})
}

// GetMetrics handles GET /v1/analyses/:id/metrics
func (h *Handler) GetMetrics(c *fiber.Ctx) error {
	id := c.Params("id")
	m, err := h.analysis.Metrics(id)
	if err != nil {
		return h.serviceError(c, err)
	}
	return c.JSON(metricsResponse(id, m))
}

// ExportTable handles GET /v1/analyses/:id/export/:table?format=csv|json|json.sz
func (h *Handler) ExportTable(c *fiber.Ctx) error {
	table := c.Params("table")

	var buf bytes.Buffer
	f, err := h.analysis.Export(&buf, c.Params("id"), table, c.Query("format"))
	if err != nil {
		return h.serviceError(c, err)
	}

	// Attachment derives a type from the extension; override it afterwards
	c.Attachment(tables.FileName(table, f))
	c.Set(fiber.HeaderContentType, f.ContentType())
	return c.Send(buf.Bytes())
}

func overridesFromInput(in models.ParamsInput) services.ParamOverrides {
	return services.ParamOverrides{
		WindowSize:        in.WindowSize,
		CleaningThreshold: in.CleaningThreshold,
		FaultMultiplier:   in.FaultMultiplier,
		NonFinitePolicy:   in.NonFinitePolicy,
		Sentinel:          in.Sentinel,
	}
}

// overridesFromForm reads parameter overrides from multipart form fields
func overridesFromForm(c *fiber.Ctx) (services.ParamOverrides, error) {
	var o services.ParamOverrides

	if s := c.FormValue("window_size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return o, fmt.Errorf("window_size: %w", err)
		}
		o.WindowSize = &n
	}

	floats := []struct {
		name string
		dst  **float64
	}{
		{"cleaning_threshold", &o.CleaningThreshold},
		{"fault_multiplier", &o.FaultMultiplier},
		{"sentinel", &o.Sentinel},
	}
	for _, fl := range floats {
		s := c.FormValue(fl.name)
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return o, fmt.Errorf("%s: %w", fl.name, err)
		}
		*fl.dst = &v
	}

	if s := c.FormValue("non_finite_policy"); s != "" {
		o.NonFinitePolicy = &s
	}
	return o, nil
}

func openFormFile(c *fiber.Ctx, field string) (multipart.File, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("missing %q file: %w", field, err)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %q file: %w", field, err)
	}
	return f, nil
}

