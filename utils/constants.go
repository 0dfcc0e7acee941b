package utils

import (
	"time"
)

// Click recording constants
const (
	// ClickDedupBucket is the time bucket used for the click dedup key.
	// Two deliveries of the same pixel inside one bucket collapse into one row.
	ClickDedupBucket = time.Minute

	// VelocityWindow is the sliding window for click velocity counting
	VelocityWindow = 10 * time.Second

	// VelocityThreshold is the number of clicks per window that flags abuse
	VelocityThreshold = 5
)

// Attribution constants
const (
	// DefaultAttributionWindowHours is the default click-to-conversion window (30 days)
	DefaultAttributionWindowHours = 720
)

// Currency constants
const (
	// DefaultCurrency is the ISO code assumed when a postback omits currency
	DefaultCurrency = "USD"
)

// Cache key prefixes
const (
	BalanceCacheKeyPrefix  = "balance"
	VelocityCacheKeyPrefix = "click_velocity"
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

type contextKey string

// Context keys handlers use to pass request facts down to flows
const (
	RequestIDKey  contextKey = "request_id"
	UserAgentKey  contextKey = "user_agent"
	IPAddressKey  contextKey = "ip_address"
	EndpointKey   contextKey = "endpoint"
	TimeoutKey    contextKey = "timeout"
	CancelFuncKey contextKey = "cancel_func"
)
