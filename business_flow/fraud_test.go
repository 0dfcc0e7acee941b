package businessflow

import (
	"testing"

	"github.com/aimarket/affiliate-engine/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyClick(t *testing.T) {
	tests := []struct {
		name       string
		signals    ClickSignals
		wantValid  bool
		wantReason models.FraudReason
	}{
		{
			name:       "clean first click",
			signals:    ClickSignals{RefCodeActive: true, PriorSessionClicks: 0, VelocityCount: 1},
			wantValid:  true,
			wantReason: models.FraudReasonNone,
		},
		{
			name:       "inactive ref code",
			signals:    ClickSignals{RefCodeActive: false, PriorSessionClicks: 0, VelocityCount: 1},
			wantValid:  false,
			wantReason: models.FraudReasonInactiveRefCode,
		},
		{
			name:       "repeat session click",
			signals:    ClickSignals{RefCodeActive: true, PriorSessionClicks: 3, VelocityCount: 1},
			wantValid:  false,
			wantReason: models.FraudReasonDuplicateSession,
		},
		{
			name:       "velocity over threshold",
			signals:    ClickSignals{RefCodeActive: true, PriorSessionClicks: 0, VelocityCount: 6},
			wantValid:  false,
			wantReason: models.FraudReasonVelocityAbuse,
		},
		{
			name:       "velocity exactly at threshold passes",
			signals:    ClickSignals{RefCodeActive: true, PriorSessionClicks: 0, VelocityCount: 5},
			wantValid:  true,
			wantReason: models.FraudReasonNone,
		},
		{
			name:       "inactive code wins over velocity",
			signals:    ClickSignals{RefCodeActive: false, PriorSessionClicks: 2, VelocityCount: 9},
			wantValid:  false,
			wantReason: models.FraudReasonInactiveRefCode,
		},
		{
			name:       "velocity wins over duplicate session",
			signals:    ClickSignals{RefCodeActive: true, PriorSessionClicks: 2, VelocityCount: 7},
			wantValid:  false,
			wantReason: models.FraudReasonVelocityAbuse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, reason := ClassifyClick(tt.signals)
			assert.Equal(t, tt.wantValid, valid)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestParseFraudReason(t *testing.T) {
	reason, err := ParseFraudReason("  Duplicate_Session ")
	require.NoError(t, err)
	assert.Equal(t, models.FraudReasonDuplicateSession, reason)

	_, err = ParseFraudReason("bot_farm")
	require.Error(t, err)
	assert.True(t, IsInvalidFraudReason(err))
}

func TestClassifyDevice(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want models.DeviceClass
	}{
		{"iphone safari", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148", models.DeviceClassMobile},
		{"android chrome", "Mozilla/5.0 (Linux; Android 14; Pixel 8) Chrome/120.0", models.DeviceClassMobile},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X)", models.DeviceClassTablet},
		{"desktop chrome", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0", models.DeviceClassDesktop},
		{"empty", "", models.DeviceClassUnknown},
		{"curl", "curl/8.4.0", models.DeviceClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyDevice(tt.ua))
		})
	}
}
