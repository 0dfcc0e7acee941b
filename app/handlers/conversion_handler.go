package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/aimarket/affiliate-engine/app/dto"
	businessflow "github.com/aimarket/affiliate-engine/business_flow"
	"github.com/aimarket/affiliate-engine/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// ConversionHandlerInterface defines the contract for conversion handlers
type ConversionHandlerInterface interface {
	IngestConversion(c fiber.Ctx) error
	ApproveConversion(c fiber.Ctx) error
	ReverseConversion(c fiber.Ctx) error
	BillConversion(c fiber.Ctx) error
	UnbillConversion(c fiber.Ctx) error
	MarkConversionPaid(c fiber.Ctx) error
	ListConversions(c fiber.Ctx) error
}

// ConversionHandler handles conversion lifecycle HTTP requests
type ConversionHandler struct {
	conversionFlow businessflow.ConversionFlow
	validator      *validator.Validate
}

// NewConversionHandler creates a new conversion handler
func NewConversionHandler(conversionFlow businessflow.ConversionFlow) *ConversionHandler {
	return &ConversionHandler{
		conversionFlow: conversionFlow,
		validator:      validator.New(),
	}
}

func (h *ConversionHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *ConversionHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// IngestConversion handles a server-to-server conversion postback
// @Summary Ingest Conversion
// @Description Ingest a conversion postback, rejecting replays of the external conversion ID
// @Tags Conversions
// @Accept json
// @Produce json
// @Param request body dto.IngestConversionRequest true "Conversion postback"
// @Success 201 {object} dto.APIResponse{data=dto.IngestConversionResponse} "Conversion ingested"
// @Failure 400 {object} dto.APIResponse "Validation error or expired attribution window"
// @Failure 409 {object} dto.APIResponse "Duplicate external conversion ID"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/conversions [post]
func (h *ConversionHandler) IngestConversion(c fiber.Ctx) error {
	var req dto.IngestConversionRequest
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

	result, err := h.conversionFlow.IngestConversion(h.createRequestContext(c, "/api/v1/conversions"), &req, metadata)
	if err != nil {
		if businessflow.IsRefCodeNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Ref code not found", "REF_CODE_NOT_FOUND", nil)
		}
		if businessflow.IsRefCodeInactive(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Ref code is inactive", "REF_CODE_INACTIVE", nil)
		}
		if businessflow.IsAttributionWindowExpired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Attribution window expired", "ATTRIBUTION_WINDOW_EXPIRED", nil)
		}
		if businessflow.IsExternalConversionIDRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "External conversion ID is required", "EXTERNAL_CONVERSION_ID_REQUIRED", nil)
		}
		if businessflow.IsInvalidConversionValue(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Conversion value must be positive", "INVALID_CONVERSION_VALUE", nil)
		}
		if businessflow.IsDuplicateConversion(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "External conversion ID already ingested", "DUPLICATE_CONVERSION", nil)
		}

		log.Println("Conversion ingest failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Conversion ingest failed", "CONVERSION_INGEST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Conversion ingested", result)
}

// ApproveConversion moves a pending conversion to approved
// @Summary Approve Conversion
// @Tags Conversions
// @Accept json
// @Produce json
// @Param id path int true "Conversion ID"
// @Param request body dto.ConversionActionRequest true "Action data"
// @Success 200 {object} dto.APIResponse{data=dto.ConversionActionResponse} "Conversion approved"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Conversion not found"
// @Failure 409 {object} dto.APIResponse "Illegal state transition"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/conversions/{id}/approve [post]
func (h *ConversionHandler) ApproveConversion(c fiber.Ctx) error {
	return h.runAction(c, "approve", h.conversionFlow.ApproveConversion)
}

// ReverseConversion moves a pending or approved conversion to reversed
// @Summary Reverse Conversion
// @Tags Conversions
// @Accept json
// @Produce json
// @Param id path int true "Conversion ID"
// @Param request body dto.ConversionActionRequest true "Action data"
// @Success 200 {object} dto.APIResponse{data=dto.ConversionActionResponse} "Conversion reversed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Conversion not found"
// @Failure 409 {object} dto.APIResponse "Conversion locked by billing"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/conversions/{id}/reverse [post]
func (h *ConversionHandler) ReverseConversion(c fiber.Ctx) error {
	return h.runAction(c, "reverse", h.conversionFlow.ReverseConversion)
}

// BillConversion attaches an approved conversion to an open invoice
// @Summary Bill Conversion
// @Tags Conversions
// @Accept json
// @Produce json
// @Param id path int true "Conversion ID"
// @Param request body dto.BillConversionRequest true "Invoice assignment"
// @Success 200 {object} dto.APIResponse{data=dto.ConversionActionResponse} "Conversion billed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Conversion or invoice not found"
// @Failure 409 {object} dto.APIResponse "Conversion already billed or invoice closed"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/conversions/{id}/bill [post]
func (h *ConversionHandler) BillConversion(c fiber.Ctx) error {
	conversionID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || conversionID == 0 {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid conversion ID", "INVALID_CONVERSION_ID", nil)
	}

	var req dto.BillConversionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.ConversionID = uint(conversionID)

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.conversionFlow.BillConversion(h.createRequestContext(c, "/api/v1/conversions/"+c.Params("id")+"/bill"), &req, metadata)
	if err != nil {
		if businessflow.IsConversionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Conversion not found", "CONVERSION_NOT_FOUND", nil)
		}
		if businessflow.IsInvoiceNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Invoice not found", "INVOICE_NOT_FOUND", nil)
		}
		if businessflow.IsInvoiceNotOpen(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Invoice is not open", "INVOICE_NOT_OPEN", nil)
		}
		if businessflow.IsConversionAlreadyBilled(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Conversion is already billed", "CONVERSION_ALREADY_BILLED", nil)
		}
		if businessflow.IsInvalidTransition(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Illegal state transition", "INVALID_TRANSITION", nil)
		}

		log.Println("Conversion billing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Conversion billing failed", "BILL_CONVERSION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// UnbillConversion detaches a billed conversion from its invoice
// @Summary Unbill Conversion
// @Tags Conversions
// @Accept json
// @Produce json
// @Param id path int true "Conversion ID"
// @Param request body dto.ConversionActionRequest true "Action data"
// @Success 200 {object} dto.APIResponse{data=dto.ConversionActionResponse} "Conversion unbilled"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Conversion not found"
// @Failure 409 {object} dto.APIResponse "Conversion already paid"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/conversions/{id}/unbill [post]
func (h *ConversionHandler) UnbillConversion(c fiber.Ctx) error {
	return h.runAction(c, "unbill", h.conversionFlow.UnbillConversion)
}

// MarkConversionPaid settles one billed conversion
// @Summary Mark Conversion Paid
// @Tags Conversions
// @Accept json
// @Produce json
// @Param id path int true "Conversion ID"
// @Param request body dto.ConversionActionRequest true "Action data"
// @Success 200 {object} dto.APIResponse{data=dto.ConversionActionResponse} "Conversion marked paid"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Conversion not found"
// @Failure 409 {object} dto.APIResponse "Illegal state transition"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/conversions/{id}/paid [post]
func (h *ConversionHandler) MarkConversionPaid(c fiber.Ctx) error {
	return h.runAction(c, "paid", h.conversionFlow.MarkConversionPaid)
}

func (h *ConversionHandler) runAction(c fiber.Ctx, action string, fn func(context.Context, *dto.ConversionActionRequest, *businessflow.ClientMetadata) (*dto.ConversionActionResponse, error)) error {
	conversionID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || conversionID == 0 {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid conversion ID", "INVALID_CONVERSION_ID", nil)
	}

	var req dto.ConversionActionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.ConversionID = uint(conversionID)

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := fn(h.createRequestContext(c, "/api/v1/conversions/"+c.Params("id")+"/"+action), &req, metadata)
	if err != nil {
		if businessflow.IsConversionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Conversion not found", "CONVERSION_NOT_FOUND", nil)
		}
		if businessflow.IsConversionLocked(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Conversion is locked by billing", "CONVERSION_LOCKED", nil)
		}
		if businessflow.IsInvalidTransition(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Illegal state transition", "INVALID_TRANSITION", nil)
		}

		log.Println("Conversion action failed", action, err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Conversion action failed", "CONVERSION_ACTION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// ListConversions lists conversions for a company
// @Summary List Conversions
// @Description List conversions with pagination, range and status filtering
// @Tags Conversions
// @Accept json
// @Produce json
// @Param request body dto.ListConversionsRequest true "Listing filters"
// @Success 200 {object} dto.APIResponse{data=dto.ListConversionsResponse} "Conversions listed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/conversions/list [post]
func (h *ConversionHandler) ListConversions(c fiber.Ctx) error {
	var req dto.ListConversionsRequest
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

	result, err := h.conversionFlow.ListConversions(h.createRequestContext(c, "/api/v1/conversions/list"), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}
		if businessflow.IsInvalidRange(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid range keyword", "INVALID_RANGE", nil)
		}

		log.Println("Conversion listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Conversion listing failed", "CONVERSION_LISTING_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Conversions listed", result)
}

func (h *ConversionHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *ConversionHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
