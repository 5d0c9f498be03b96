package sportsdata

import (
	"fmt"
	"time"
)

// RateLimitError reports that the sports-data API refused the request for
// quota reasons, either as HTTP 429 or as a rate-limit flag in a 200 body.
// RetryAfter is zero when the server sent no Retry-After header. Limit and
// Remaining mirror the x-ratelimit response headers when present.
type RateLimitError struct {
	Endpoint   string
	RetryAfter time.Duration
	Limit      int
	Remaining  int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("sportsdata: %s: rate limited, retry after %s", e.Endpoint, e.RetryAfter)
	}
	return fmt.Sprintf("sportsdata: %s: rate limited", e.Endpoint)
}

// ServiceError reports a non-success HTTP status from the sports-data API.
type ServiceError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("sportsdata: %s: status %d: %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("sportsdata: %s: status %d", e.Endpoint, e.Status)
}

// Retryable reports whether the failure is worth another attempt. Auth
// failures are permanent; server errors are transient.
func (e *ServiceError) Retryable() bool {
	return e.Status >= 500
}

// PlanRestrictionError reports that the API key's subscription plan does not
// cover the requested data. Detail carries the API's own explanation, which
// names the seasons the plan does cover.
type PlanRestrictionError struct {
	Endpoint string
	Detail   string
}

func (e *PlanRestrictionError) Error() string {
	return fmt.Sprintf("sportsdata: %s: plan restriction: %s", e.Endpoint, e.Detail)
}
