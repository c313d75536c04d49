package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"a4achat/internal/gateway"
	"a4achat/internal/logging"
)

const (
	sessionIDKey      = "session_id"
	starterClaimedKey = "starter_claimed"
)

// GrantAPI is the slice of the gateway client the manager needs.
type GrantAPI interface {
	ClaimStarter(ctx context.Context, sessionID string) (*gateway.StarterGrant, error)
}

// Manager hands out the session identity and runs the starter grant
// handshake at most once across all runs.
type Manager struct {
	session   *SessionStore
	permanent *PermanentStore
	api       GrantAPI
}

func NewManager(session *SessionStore, permanent *PermanentStore, api GrantAPI) *Manager {
	return &Manager{session: session, permanent: permanent, api: api}
}

// SessionID returns the stable identifier for this process session,
// generating it on first use. The identifier is never persisted; a new
// run is a new session.
func (m *Manager) SessionID() string {
	if id, ok := m.session.Get(sessionIDKey); ok {
		return id
	}
	id := uuid.NewString()
	m.session.Set(sessionIDKey, id)
	logging.SessionDebug("session identity created: %s", id)
	return id
}

// AlreadyClaimed reports whether a starter grant was concluded in this
// or any earlier run.
func (m *Manager) AlreadyClaimed() bool {
	v, ok := m.permanent.Get(starterClaimedKey)
	return ok && v == "true"
}

// ClaimStarterOnce requests the starter token grant unless it was
// already concluded; in that case it returns (nil, nil) without any
// network traffic. Any gateway verdict, grant or refusal, marks the
// claim as concluded. Transport and HTTP failures leave the flag unset
// so a later attempt can retry.
func (m *Manager) ClaimStarterOnce(ctx context.Context) (*gateway.StarterGrant, error) {
	if m.AlreadyClaimed() {
		return nil, nil
	}

	id := m.SessionID()
	logging.SessionDebug("claiming starter grant for session %s", id)

	grant, err := m.api.ClaimStarter(ctx, id)
	if err != nil {
		logging.SessionError("starter grant claim failed: %v", err)
		return nil, err
	}

	logging.Session("starter grant verdict: granted=%v amount=%d reason=%q", grant.Granted, grant.Amount, grant.Reason)
	if err := m.permanent.Set(starterClaimedKey, "true"); err != nil {
		return grant, fmt.Errorf("persist claimed flag: %w", err)
	}
	return grant, nil
}
