package authsdk

// ============================================================================
// Auth Types
// ============================================================================

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	// Token is the signed bearer token.
	Token string `json:"token"`

	// Message is a human readable confirmation, e.g. "Login successful".
	Message string `json:"message"`
}

// DashboardResponse is the chart data served to authenticated users.
type DashboardResponse struct {
	Labels []string `json:"labels"`
	Values []int    `json:"values"`
}

// ErrorResponse is the body of every non-2xx response from the service.
type ErrorResponse struct {
	Message string `json:"message"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status ("ok" or "degraded")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains dependency status, only present on /readyz
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of the service dependencies.
type HealthChecks struct {
	// Database indicates the audit database status
	Database string `json:"database"`

	// CounterStore indicates the rate limit counter store status
	CounterStore string `json:"counter_store"`
}
