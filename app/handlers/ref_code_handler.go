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

// RefCodeHandlerInterface defines the contract for ref code handlers
type RefCodeHandlerInterface interface {
	CreateRefCode(c fiber.Ctx) error
	UpdateRefCode(c fiber.Ctx) error
	ListRefCodes(c fiber.Ctx) error
}

// RefCodeHandler handles referral code HTTP requests
type RefCodeHandler struct {
	refCodeFlow businessflow.RefCodeFlow
	validator   *validator.Validate
}

// NewRefCodeHandler creates a new ref code handler
func NewRefCodeHandler(refCodeFlow businessflow.RefCodeFlow) *RefCodeHandler {
	return &RefCodeHandler{
		refCodeFlow: refCodeFlow,
		validator:   validator.New(),
	}
}

func (h *RefCodeHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *RefCodeHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateRefCode registers a new referral code
// @Summary Create Ref Code
// @Tags RefCodes
// @Accept json
// @Produce json
// @Param request body dto.CreateRefCodeRequest true "Ref code data"
// @Success 201 {object} dto.APIResponse{data=dto.RefCodeResponse} "Ref code created"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 409 {object} dto.APIResponse "Code already exists"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/ref-codes [post]
func (h *RefCodeHandler) CreateRefCode(c fiber.Ctx) error {
	var req dto.CreateRefCodeRequest
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

	result, err := h.refCodeFlow.CreateRefCode(h.createRequestContext(c, "/api/v1/ref-codes"), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}
		if businessflow.IsRefCodeAlreadyExists(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Ref code already exists", "REF_CODE_ALREADY_EXISTS", nil)
		}
		if businessflow.IsInvalidCommissionRate(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid commission rate", "INVALID_COMMISSION_RATE", nil)
		}
		if businessflow.IsInvalidMonetizable(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid monetizable target", "INVALID_MONETIZABLE", nil)
		}

		log.Println("Ref code creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Ref code creation failed", "REF_CODE_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, result.Message, result)
}

// UpdateRefCode updates rate, link or active flag of a code
// @Summary Update Ref Code
// @Tags RefCodes
// @Accept json
// @Produce json
// @Param request body dto.UpdateRefCodeRequest true "Update data"
// @Success 200 {object} dto.APIResponse{data=dto.RefCodeResponse} "Ref code updated"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Ref code not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/ref-codes [put]
func (h *RefCodeHandler) UpdateRefCode(c fiber.Ctx) error {
	var req dto.UpdateRefCodeRequest
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

	result, err := h.refCodeFlow.UpdateRefCode(h.createRequestContext(c, "/api/v1/ref-codes"), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}
		if businessflow.IsRefCodeNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Ref code not found", "REF_CODE_NOT_FOUND", nil)
		}
		if businessflow.IsInvalidCommissionRate(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid commission rate", "INVALID_COMMISSION_RATE", nil)
		}

		log.Println("Ref code update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Ref code update failed", "REF_CODE_UPDATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// ListRefCodes lists a company's referral codes with per-code stats
// @Summary List Ref Codes
// @Tags RefCodes
// @Accept json
// @Produce json
// @Param request body dto.ListRefCodesRequest true "Listing filters"
// @Success 200 {object} dto.APIResponse{data=dto.ListRefCodesResponse} "Ref codes listed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/ref-codes/list [post]
func (h *RefCodeHandler) ListRefCodes(c fiber.Ctx) error {
	var req dto.ListRefCodesRequest
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

	result, err := h.refCodeFlow.ListRefCodes(h.createRequestContext(c, "/api/v1/ref-codes/list"), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}

		log.Println("Ref code listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Ref code listing failed", "REF_CODE_LISTING_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Ref codes listed", result)
}

func (h *RefCodeHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *RefCodeHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
