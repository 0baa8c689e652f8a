package testutil

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"courier/pkg/domain"
	"courier/pkg/requestcontext"
)

// NewActor builds an actor with the given roles and department for tests.
func NewActor(dept domain.Department, roles ...domain.Role) domain.Actor {
	return domain.Actor{
		ID:         domain.ActorID(uuid.New()),
		Roles:      roles,
		Department: dept,
	}
}

// WithActor adds an authenticated actor to the request context, simulating
// what the auth middleware does for authenticated requests.
func WithActor(req *http.Request, actor domain.Actor) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// ContextWithTime returns a context carrying a fixed request time so
// timestamp assertions are exact.
func ContextWithTime(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}
