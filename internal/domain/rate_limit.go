package domain

import (
	"time"
)

// RateLimitRule - лимит фиксированного окна для одной области
type RateLimitRule struct {
	Scope  string
	Limit  int
	Window time.Duration
}

const (
	RateLimitScopeResolve = "resolve"
	RateLimitScopeMessage = "message"
)

// Enabled: нулевой лимит или окно отключают правило
func (r RateLimitRule) Enabled() bool {
	return r.Limit > 0 && r.Window > 0
}

func (r RateLimitRule) Key(subject string) string {
	return r.Scope + ":" + subject
}
