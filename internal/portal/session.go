package portal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"
)

// SessionState tracks a taxpayer authentication session through the
// OTP lifecycle.
type SessionState string

const (
	SessionRequested SessionState = "REQUESTED"
	SessionOTPSent   SessionState = "OTP_SENT"
	SessionVerified  SessionState = "VERIFIED"
	SessionExpired   SessionState = "EXPIRED"
)

// Validity windows: the OTP must be entered within ten minutes, a
// verified session serves fetches for six hours.
const (
	otpValidity     = 10 * time.Minute
	sessionValidity = 6 * time.Hour
)

// Session is one taxpayer authentication attempt. TaxpayerToken is
// set only after OTP verification; everything downstream treats it as
// opaque.
type Session struct {
	ID            string
	GSTIN         string
	Username      string
	State         SessionState
	TaxpayerToken string

	accessToken string
	expiresAt   time.Time
}

// Expired reports whether the session's current window has lapsed.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.expiresAt)
}

// SessionManager drives sessions through REQUESTED, OTP_SENT and
// VERIFIED, expiring them on time. It is safe for concurrent use.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	client   *Client
	now      func() time.Time
	log      logger.Logger
}

// NewSessionManager builds a manager on top of the portal client.
func NewSessionManager(client *Client) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		client:   client,
		now:      time.Now,
		log:      logger.WithComponent("session_manager"),
	}
}

// RequestOTP starts a session: it authenticates to the gateway, asks
// the portal to send the taxpayer an OTP and returns the new session
// in state OTP_SENT. The OTP must be verified within ten minutes.
func (m *SessionManager) RequestOTP(ctx context.Context, username, gstin string) (*Session, error) {
	gstin = models.NormalizeKey(gstin)
	if !models.IsValidGSTIN(gstin) {
		return nil, errors.ValidationError(errors.CodeInvalidGSTIN, "gstin", gstin, nil)
	}
	if username == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "username", "", nil)
	}

	session := &Session{
		ID:       uuid.New().String(),
		GSTIN:    gstin,
		Username: username,
		State:    SessionRequested,
	}

	accessToken, err := m.client.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.client.RequestOTP(ctx, accessToken, username, gstin); err != nil {
		return nil, err
	}

	session.State = SessionOTPSent
	session.accessToken = accessToken
	session.expiresAt = m.now().Add(otpValidity)

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.log.WithFields(logger.Fields{
		"session_id": session.ID,
		"gstin":      gstin,
	}).Info("OTP sent, session opened")
	return session, nil
}

// VerifyOTP exchanges the OTP for a taxpayer token and promotes the
// session to VERIFIED with a six-hour validity window. Verifying an
// already verified session is a no-op.
func (m *SessionManager) VerifyOTP(ctx context.Context, sessionID, otp string) (*Session, error) {
	// State checks happen under the lock; the portal call does not, so
	// a slow OTP exchange never blocks other sessions.
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, errors.AuthError(errors.CodeSessionNotFound, sessionID, nil)
	}
	if session.State == SessionVerified && !session.Expired(m.now()) {
		m.mu.Unlock()
		return session, nil
	}
	if m.expireIfNeeded(session) {
		m.mu.Unlock()
		return nil, errors.AuthError(errors.CodeSessionExpired, sessionID, nil)
	}
	if otp == "" {
		m.mu.Unlock()
		return nil, errors.AuthError(errors.CodeOTPRejected, "empty OTP", nil)
	}
	accessToken := session.accessToken
	username, gstin := session.Username, session.GSTIN
	m.mu.Unlock()

	token, err := m.client.VerifyOTP(ctx, accessToken, username, gstin, otp)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.expireIfNeeded(session) {
		m.mu.Unlock()
		return nil, errors.AuthError(errors.CodeSessionExpired, sessionID, nil)
	}
	session.TaxpayerToken = token
	session.State = SessionVerified
	session.expiresAt = m.now().Add(sessionValidity)
	m.mu.Unlock()

	m.log.WithField("session_id", session.ID).Info("Session verified")
	return session, nil
}

// ValidSession returns a VERIFIED, unexpired session with a usable
// taxpayer token, or a typed auth error saying exactly what is wrong.
func (m *SessionManager) ValidSession(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, errors.AuthError(errors.CodeSessionNotFound, sessionID, nil)
	}
	if m.expireIfNeeded(session) {
		return nil, errors.AuthError(errors.CodeSessionExpired, sessionID, nil)
	}
	if session.State != SessionVerified {
		return nil, errors.AuthError(errors.CodeSessionNotVerified, sessionID, nil)
	}
	if session.TaxpayerToken == "" {
		return nil, errors.AuthError(errors.CodeTokenInvalid, sessionID, nil)
	}
	return session, nil
}

// Cleanup drops expired sessions and returns how many were removed.
func (m *SessionManager) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, session := range m.sessions {
		if session.Expired(m.now()) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// expireIfNeeded flips a lapsed session to EXPIRED.
func (m *SessionManager) expireIfNeeded(session *Session) bool {
	if session.State == SessionExpired {
		return true
	}
	if session.Expired(m.now()) {
		session.State = SessionExpired
		return true
	}
	return false
}
