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

// ClickHandlerInterface defines the contract for click handlers
type ClickHandlerInterface interface {
	RecordClick(c fiber.Ctx) error
	ListClicks(c fiber.Ctx) error
	UpdateClickValidity(c fiber.Ctx) error
}

// ClickHandler handles click tracking HTTP requests
type ClickHandler struct {
	clickFlow businessflow.ClickFlow
	validator *validator.Validate
}

// NewClickHandler creates a new click handler
func NewClickHandler(clickFlow businessflow.ClickFlow) *ClickHandler {
	return &ClickHandler{
		clickFlow: clickFlow,
		validator: validator.New(),
	}
}

func (h *ClickHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *ClickHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// RecordClick ingests one tracked click
// @Summary Record Click
// @Description Record a tracked click, classifying it for fraud on the way in
// @Tags Clicks
// @Accept json
// @Produce json
// @Param request body dto.RecordClickRequest true "Click data"
// @Success 201 {object} dto.APIResponse{data=dto.RecordClickResponse} "Click recorded"
// @Failure 400 {object} dto.APIResponse "Validation error or unknown ref code"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/clicks [post]
func (h *ClickHandler) RecordClick(c fiber.Ctx) error {
	var req dto.RecordClickRequest
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

	// The pixel usually omits IP and user agent; fall back to the request's.
	if req.IP == "" {
		req.IP = c.IP()
	}
	if req.UserAgent == "" {
		req.UserAgent = c.Get("User-Agent")
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.clickFlow.RecordClick(h.createRequestContext(c, "/api/v1/clicks"), &req, metadata)
	if err != nil {
		if businessflow.IsRefCodeNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Ref code not found", "REF_CODE_NOT_FOUND", nil)
		}
		if businessflow.IsRefCodeInactive(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Ref code is inactive", "REF_CODE_INACTIVE", nil)
		}
		if businessflow.IsSessionIDRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Session ID is required", "SESSION_ID_REQUIRED", nil)
		}

		log.Println("Click recording failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Click recording failed", "CLICK_RECORDING_FAILED", nil)
	}

	status := fiber.StatusCreated
	if result.Deduplicated {
		status = fiber.StatusOK
	}
	return h.SuccessResponse(c, status, "Click recorded", result)
}

// ListClicks lists clicks for a company
// @Summary List Clicks
// @Description List recorded clicks with pagination and range filtering
// @Tags Clicks
// @Accept json
// @Produce json
// @Param request body dto.ListClicksRequest true "Listing filters"
// @Success 200 {object} dto.APIResponse{data=dto.ListClicksResponse} "Clicks listed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/clicks/list [post]
func (h *ClickHandler) ListClicks(c fiber.Ctx) error {
	var req dto.ListClicksRequest
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

	result, err := h.clickFlow.ListClicks(h.createRequestContext(c, "/api/v1/clicks/list"), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}
		if businessflow.IsInvalidRange(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid range keyword", "INVALID_RANGE", nil)
		}

		log.Println("Click listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Click listing failed", "CLICK_LISTING_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Clicks listed", result)
}

// UpdateClickValidity flips a click's fraud verdict
// @Summary Update Click Validity
// @Description Correct the validity verdict of one click
// @Tags Clicks
// @Accept json
// @Produce json
// @Param request body dto.UpdateClickValidityRequest true "Correction data"
// @Success 200 {object} dto.APIResponse{data=dto.UpdateClickValidityResponse} "Click updated"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Click not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/clicks/validity [put]
func (h *ClickHandler) UpdateClickValidity(c fiber.Ctx) error {
	var req dto.UpdateClickValidityRequest
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

	result, err := h.clickFlow.UpdateClickValidity(h.createRequestContext(c, "/api/v1/clicks/validity"), &req, metadata)
	if err != nil {
		if businessflow.IsClickNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Click not found", "CLICK_NOT_FOUND", nil)
		}
		if businessflow.IsInvalidFraudReason(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid fraud reason", "INVALID_FRAUD_REASON", nil)
		}

		log.Println("Click validity update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Click validity update failed", "CLICK_VALIDITY_UPDATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Click validity updated", result)
}

func (h *ClickHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *ClickHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
