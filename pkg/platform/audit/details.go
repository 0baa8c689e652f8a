package audit

import (
	"context"

	"courier/pkg/requestcontext"
)

// DetailsFromContext enriches an entry's details with request metadata when
// middleware has recorded any. The base map is mutated and returned.
func DetailsFromContext(ctx context.Context, details map[string]string) map[string]string {
	if details == nil {
		details = make(map[string]string)
	}
	if id := requestcontext.RequestID(ctx); id != "" {
		details["request_id"] = id
	}
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		details["client_ip"] = ip
	}
	if ua := requestcontext.UserAgent(ctx); ua != "" {
		details["user_agent"] = ua
	}
	return details
}
