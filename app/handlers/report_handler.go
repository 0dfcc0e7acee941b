// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"time"

	"github.com/aimarket/affiliate-engine/app/dto"
	businessflow "github.com/aimarket/affiliate-engine/business_flow"
	"github.com/aimarket/affiliate-engine/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// ReportHandlerInterface defines the contract for report handlers
type ReportHandlerInterface interface {
	GetKPIs(c fiber.Ctx) error
	GetTimeline(c fiber.Ctx) error
	GetGeoBreakdown(c fiber.Ctx) error
	GetDeviceBreakdown(c fiber.Ctx) error
	GetTopRefCodes(c fiber.Ctx) error
	ExportReport(c fiber.Ctx) error
}

// ReportHandler handles reporting HTTP requests
type ReportHandler struct {
	reportFlow businessflow.ReportFlow
	validator  *validator.Validate
}

// NewReportHandler creates a new report handler
func NewReportHandler(reportFlow businessflow.ReportFlow) *ReportHandler {
	return &ReportHandler{
		reportFlow: reportFlow,
		validator:  validator.New(),
	}
}

func (h *ReportHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *ReportHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// GetKPIs returns the headline numbers for a range
// @Summary Report KPIs
// @Description Aggregate clicks, conversions, revenue and commission over a range
// @Tags Reports
// @Accept json
// @Produce json
// @Param request body dto.GetReportRequest true "Report scope"
// @Success 200 {object} dto.APIResponse{data=dto.KPIReportResponse} "KPIs computed"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid range"
// @Failure 404 {object} dto.APIResponse "Company not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/reports/kpis [post]
func (h *ReportHandler) GetKPIs(c fiber.Ctx) error {
	return h.runReport(c, "/api/v1/reports/kpis", "KPI report",
		func(ctx context.Context, req *dto.GetReportRequest, metadata *businessflow.ClientMetadata) (any, error) {
			return h.reportFlow.GetKPIs(ctx, req, metadata)
		})
}

// GetTimeline returns per-day clicks, conversions and commission
// @Summary Report Timeline
// @Description Per-day click and conversion counts over a range
// @Tags Reports
// @Accept json
// @Produce json
// @Param request body dto.GetReportRequest true "Report scope"
// @Success 200 {object} dto.APIResponse{data=dto.TimelineResponse} "Timeline computed"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid range"
// @Failure 404 {object} dto.APIResponse "Company not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/reports/timeline [post]
func (h *ReportHandler) GetTimeline(c fiber.Ctx) error {
	return h.runReport(c, "/api/v1/reports/timeline", "Timeline report",
		func(ctx context.Context, req *dto.GetReportRequest, metadata *businessflow.ClientMetadata) (any, error) {
			return h.reportFlow.GetTimeline(ctx, req, metadata)
		})
}

// GetGeoBreakdown returns click counts grouped by country
// @Summary Report Geo Breakdown
// @Description Valid click counts grouped by country over a range
// @Tags Reports
// @Accept json
// @Produce json
// @Param request body dto.GetReportRequest true "Report scope"
// @Success 200 {object} dto.APIResponse{data=dto.BreakdownResponse} "Breakdown computed"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid range"
// @Failure 404 {object} dto.APIResponse "Company not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/reports/geo [post]
func (h *ReportHandler) GetGeoBreakdown(c fiber.Ctx) error {
	return h.runReport(c, "/api/v1/reports/geo", "Geo breakdown",
		func(ctx context.Context, req *dto.GetReportRequest, metadata *businessflow.ClientMetadata) (any, error) {
			return h.reportFlow.GetGeoBreakdown(ctx, req, metadata)
		})
}

// GetDeviceBreakdown returns click counts grouped by device type
// @Summary Report Device Breakdown
// @Description Valid click counts grouped by device type over a range
// @Tags Reports
// @Accept json
// @Produce json
// @Param request body dto.GetReportRequest true "Report scope"
// @Success 200 {object} dto.APIResponse{data=dto.BreakdownResponse} "Breakdown computed"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid range"
// @Failure 404 {object} dto.APIResponse "Company not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/reports/devices [post]
func (h *ReportHandler) GetDeviceBreakdown(c fiber.Ctx) error {
	return h.runReport(c, "/api/v1/reports/devices", "Device breakdown",
		func(ctx context.Context, req *dto.GetReportRequest, metadata *businessflow.ClientMetadata) (any, error) {
			return h.reportFlow.GetDeviceBreakdown(ctx, req, metadata)
		})
}

// GetTopRefCodes ranks ref codes by commission earned
// @Summary Report Top Ref Codes
// @Description Best performing ref codes by commission over a range
// @Tags Reports
// @Accept json
// @Produce json
// @Param request body dto.GetReportRequest true "Report scope"
// @Success 200 {object} dto.APIResponse{data=dto.TopRefCodesResponse} "Ranking computed"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid range"
// @Failure 404 {object} dto.APIResponse "Company not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/reports/top-ref-codes [post]
func (h *ReportHandler) GetTopRefCodes(c fiber.Ctx) error {
	return h.runReport(c, "/api/v1/reports/top-ref-codes", "Top ref codes report",
		func(ctx context.Context, req *dto.GetReportRequest, metadata *businessflow.ClientMetadata) (any, error) {
			return h.reportFlow.GetTopRefCodes(ctx, req, metadata)
		})
}

// ExportReport streams the range as an XLSX workbook
// @Summary Export Report
// @Description Generate an XLSX workbook with a summary sheet and the conversion rows for a range
// @Tags Reports
// @Accept json
// @Produce application/octet-stream
// @Param request body dto.ExportReportRequest true "Export scope"
// @Success 200 {file} binary "XLSX workbook"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid range"
// @Failure 404 {object} dto.APIResponse "Company not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/reports/export [post]
func (h *ReportHandler) ExportReport(c fiber.Ctx) error {
	var req dto.ExportReportRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.reportFlow.ExportReport(h.createRequestContextWithTimeout(c, "/api/v1/reports/export", 60*time.Second), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}
		if businessflow.IsInvalidRange(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid range keyword", "INVALID_RANGE", nil)
		}

		log.Println("Report export failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Report export failed", "REPORT_EXPORT_FAILED", nil)
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename="+result.FileName)
	return c.Send(result.Content)
}

func (h *ReportHandler) runReport(c fiber.Ctx, endpoint, label string, run func(context.Context, *dto.GetReportRequest, *businessflow.ClientMetadata) (any, error)) error {
	var req dto.GetReportRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := run(h.createRequestContext(c, endpoint), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}
		if businessflow.IsInvalidRange(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid range keyword", "INVALID_RANGE", nil)
		}

		log.Println(label+" failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, label+" failed", "REPORT_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, label+" computed", result)
}

func (h *ReportHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *ReportHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
