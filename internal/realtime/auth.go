package realtime

import (
	"context"

	"github.com/google/uuid"

	"github.com/gatherpass/backend/internal/auth"
	"github.com/gatherpass/backend/internal/models"
	"github.com/gatherpass/backend/pkg/apperror"
)

// EventGetter loads an event by id.
type EventGetter interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// HostAuthorizer admits the event's host to its feed.
type HostAuthorizer struct {
	jwt    *auth.JWTService
	events EventGetter
}

// NewHostAuthorizer creates an Authorizer backed by JWT and the ledger.
func NewHostAuthorizer(jwt *auth.JWTService, events EventGetter) *HostAuthorizer {
	return &HostAuthorizer{jwt: jwt, events: events}
}

// AuthorizeFeed implements Authorizer.
func (a *HostAuthorizer) AuthorizeFeed(ctx context.Context, token string, eventID uuid.UUID) (uuid.UUID, error) {
	claims, err := a.jwt.Validate(token)
	if err != nil {
		return uuid.Nil, ErrBadToken
	}
	e, err := a.events.GetEvent(ctx, eventID)
	if err != nil {
		return uuid.Nil, err
	}
	if e.HostID != claims.UserID {
		return uuid.Nil, apperror.Forbidden("only the host can watch this feed")
	}
	return claims.UserID, nil
}
