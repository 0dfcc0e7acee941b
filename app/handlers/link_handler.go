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

// LinkHandlerInterface defines the contract for link builder handlers
type LinkHandlerInterface interface {
	BuildLink(c fiber.Ctx) error
}

// LinkHandler handles affiliate link builder HTTP requests
type LinkHandler struct {
	linkFlow  businessflow.LinkBuilderFlow
	validator *validator.Validate
}

// NewLinkHandler creates a new link handler
func NewLinkHandler(linkFlow businessflow.LinkBuilderFlow) *LinkHandler {
	return &LinkHandler{
		linkFlow:  linkFlow,
		validator: validator.New(),
	}
}

func (h *LinkHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *LinkHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// BuildLink assembles a tracked affiliate URL
// @Summary Build Affiliate Link
// @Description Assemble a tracked URL from a ref code and the company's link settings
// @Tags Links
// @Accept json
// @Produce json
// @Param request body dto.BuildLinkRequest true "Link parameters"
// @Success 200 {object} dto.APIResponse{data=dto.BuildLinkResponse} "Link built"
// @Failure 400 {object} dto.APIResponse "Validation error, inactive ref code or unusable target"
// @Failure 403 {object} dto.APIResponse "Target domain outside the allowlist"
// @Failure 404 {object} dto.APIResponse "Company or ref code not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/links/build [post]
func (h *LinkHandler) BuildLink(c fiber.Ctx) error {
	var req dto.BuildLinkRequest
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

	result, err := h.linkFlow.BuildLink(h.createRequestContext(c, "/api/v1/links/build"), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}
		if businessflow.IsRefCodeNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Ref code not found", "REF_CODE_NOT_FOUND", nil)
		}
		if businessflow.IsRefCodeInactive(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Ref code is inactive", "REF_CODE_INACTIVE", nil)
		}
		if businessflow.IsLinkSettingsNotConfigured(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Link settings are not configured", "LINK_SETTINGS_NOT_CONFIGURED", nil)
		}
		if businessflow.IsDomainNotAllowed(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Domain is not allowlisted", "DOMAIN_NOT_ALLOWED", nil)
		}
		if businessflow.IsInvalidTargetURL(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Target URL is invalid", "INVALID_TARGET_URL", nil)
		}

		log.Println("Link building failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Link building failed", "LINK_BUILDING_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Link built", result)
}

func (h *LinkHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *LinkHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
