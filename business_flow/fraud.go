package businessflow

import (
	"strings"

	"github.com/aimarket/affiliate-engine/models"
	"github.com/aimarket/affiliate-engine/utils"
)

// ClickSignals carries everything the classifier needs, gathered by the click
// flow before classification so the verdict itself stays a pure function.
type ClickSignals struct {
	// RefCodeActive is false when the code was deactivated before the click
	RefCodeActive bool

	// PriorSessionClicks counts earlier clicks by the same session on the
	// same company, outside the current dedup bucket
	PriorSessionClicks int64

	// VelocityCount is how many clicks this session produced inside the
	// velocity window, including this one
	VelocityCount int64
}

// ClassifyClick returns the validity verdict for a click. Every click is
// recorded either way; invalid clicks carry the first matching reason, checked
// in severity order.
func ClassifyClick(signals ClickSignals) (bool, models.FraudReason) {
	if !signals.RefCodeActive {
		return false, models.FraudReasonInactiveRefCode
	}
	if signals.VelocityCount > utils.VelocityThreshold {
		return false, models.FraudReasonVelocityAbuse
	}
	if signals.PriorSessionClicks > 0 {
		return false, models.FraudReasonDuplicateSession
	}
	return true, models.FraudReasonNone
}

// ParseFraudReason validates a reason string against the closed reason set
func ParseFraudReason(s string) (models.FraudReason, error) {
	switch models.FraudReason(strings.ToLower(strings.TrimSpace(s))) {
	case models.FraudReasonNone:
		return models.FraudReasonNone, nil
	case models.FraudReasonDuplicateSession:
		return models.FraudReasonDuplicateSession, nil
	case models.FraudReasonVelocityAbuse:
		return models.FraudReasonVelocityAbuse, nil
	case models.FraudReasonInactiveRefCode:
		return models.FraudReasonInactiveRefCode, nil
	case models.FraudReasonManualOverride:
		return models.FraudReasonManualOverride, nil
	case models.FraudReasonUnknown:
		return models.FraudReasonUnknown, nil
	default:
		return "", ErrInvalidFraudReason
	}
}

// ClassifyDevice buckets a user agent into a coarse device class
func ClassifyDevice(userAgent string) models.DeviceClass {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return models.DeviceClassUnknown
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return models.DeviceClassTablet
	case strings.Contains(ua, "mobi") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone"):
		return models.DeviceClassMobile
	case strings.Contains(ua, "mozilla") || strings.Contains(ua, "windows") || strings.Contains(ua, "macintosh") || strings.Contains(ua, "x11"):
		return models.DeviceClassDesktop
	default:
		return models.DeviceClassUnknown
	}
}
