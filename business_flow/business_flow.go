// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"strings"
	"time"

	"github.com/aimarket/affiliate-engine/models"
	"github.com/aimarket/affiliate-engine/repository"
	"github.com/aimarket/affiliate-engine/utils"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds all client-related information for audit logging and fraud classification
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	DeviceInfo map[string]string `json:"device_info,omitempty"`
	Location   *LocationInfo     `json:"location,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// LocationInfo holds geographical location information
type LocationInfo struct {
	Country   string `json:"country,omitempty"`
	Region    string `json:"region,omitempty"`
	City      string `json:"city,omitempty"`
	Latitude  string `json:"latitude,omitempty"`
	Longitude string `json:"longitude,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		DeviceInfo: make(map[string]string),
		Additional: make(map[string]string),
	}
}

// AddDeviceInfo adds device information to the metadata
func (cm *ClientMetadata) AddDeviceInfo(key, value string) {
	if cm.DeviceInfo == nil {
		cm.DeviceInfo = make(map[string]string)
	}
	cm.DeviceInfo[key] = value
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetLocation sets location information
func (cm *ClientMetadata) SetLocation(location *LocationInfo) {
	cm.Location = location
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// SetSessionID sets the session ID
func (cm *ClientMetadata) SetSessionID(sessionID string) {
	cm.SessionID = sessionID
}

// ResolveRange maps a range keyword to a [from, to) interval in UTC.
// Supported keywords: today, yesterday, 7d, 30d, 90d, all. An empty keyword
// means all.
func ResolveRange(keyword string, now time.Time) (*time.Time, *time.Time, error) {
	now = now.UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch strings.ToLower(strings.TrimSpace(keyword)) {
	case "", "all":
		return nil, nil, nil
	case "today":
		return &startOfDay, nil, nil
	case "yesterday":
		from := startOfDay.AddDate(0, 0, -1)
		return &from, &startOfDay, nil
	case "7d":
		from := startOfDay.AddDate(0, 0, -7)
		return &from, nil, nil
	case "30d":
		from := startOfDay.AddDate(0, 0, -30)
		return &from, nil, nil
	case "90d":
		from := startOfDay.AddDate(0, 0, -90)
		return &from, nil, nil
	default:
		return nil, nil, ErrInvalidRange
	}
}

// NormalizePagination validates page and page size, returning limit and offset
func NormalizePagination(page, pageSize int) (int, int, error) {
	if page < 1 {
		return 0, 0, ErrInvalidPage
	}
	if pageSize < 1 || pageSize > 100 {
		return 0, 0, ErrInvalidPageSize
	}
	return pageSize, (page - 1) * pageSize, nil
}

// createAuditLog creates an audit log entry for an engine operation
func createAuditLog(ctx context.Context, auditRepo repository.AuditLogRepository, companyID *uint, action, description string, success bool, errorMsg *string, metadata *ClientMetadata) error {
	ipAddress := ""
	userAgent := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
	}

	audit := &models.AuditLog{
		CompanyID:    companyID,
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		IPAddress:    &ipAddress,
		UserAgent:    &userAgent,
		ErrorMessage: errorMsg,
	}

	requestID := ctx.Value(utils.RequestIDKey)
	if requestID != nil {
		requestIDStr, ok := requestID.(string)
		if ok {
			audit.RequestID = &requestIDStr
		}
	}

	if err := auditRepo.Save(ctx, audit); err != nil {
		return err
	}

	return nil
}
