package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gst-reconciliation-service/pkg/errors"
)

const testGSTIN = "27AAACB2894G1ZK"

// otpServer fakes the gateway: authenticate, send OTP, verify OTP.
func otpServer(t *testing.T, acceptOTP string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/authenticate":
			w.Write([]byte(`{"access_token": "gateway-tok"}`))
		case r.URL.Path == "/gst/compliance/tax-payer/otp":
			w.Write([]byte(`{"data": {"status_cd": "1"}}`))
		case strings.HasPrefix(r.URL.Path, "/gst/compliance/tax-payer/otp/verify"):
			if r.URL.Query().Get("otp") != acceptOTP {
				w.Write([]byte(`{"data": {"status_cd": "0", "message": "wrong OTP"}}`))
				return
			}
			w.Write([]byte(`{"data": {"access_token": "taxpayer-tok"}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func testSessionManager(t *testing.T, server *httptest.Server) *SessionManager {
	t.Helper()
	return NewSessionManager(testClient(t, server, NewTTLCache(TokenCacheTTL), nil))
}

func TestSessionLifecycle(t *testing.T) {
	server := otpServer(t, "482913")
	defer server.Close()
	m := testSessionManager(t, server)

	session, err := m.RequestOTP(context.Background(), "taxpayer1", testGSTIN)
	if err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	if session.State != SessionOTPSent {
		t.Errorf("state after request: %s", session.State)
	}
	if session.TaxpayerToken != "" {
		t.Errorf("taxpayer token must not exist before verification")
	}

	// An unverified session cannot serve fetches.
	if _, err := m.ValidSession(session.ID); err == nil {
		t.Fatal("unverified session should be rejected")
	} else if recErr, _ := errors.AsReconError(err); recErr.Code != errors.CodeSessionNotVerified {
		t.Errorf("expected session_not_verified, got %s", recErr.Code)
	}

	verified, err := m.VerifyOTP(context.Background(), session.ID, "482913")
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if verified.State != SessionVerified || verified.TaxpayerToken != "taxpayer-tok" {
		t.Errorf("verification outcome: %s / %q", verified.State, verified.TaxpayerToken)
	}

	got, err := m.ValidSession(session.ID)
	if err != nil {
		t.Fatalf("ValidSession: %v", err)
	}
	if got.TaxpayerToken != "taxpayer-tok" {
		t.Errorf("taxpayer token: %q", got.TaxpayerToken)
	}
}

func TestSessionWrongOTP(t *testing.T) {
	server := otpServer(t, "482913")
	defer server.Close()
	m := testSessionManager(t, server)

	session, _ := m.RequestOTP(context.Background(), "taxpayer1", testGSTIN)
	_, err := m.VerifyOTP(context.Background(), session.ID, "000000")
	if err == nil {
		t.Fatal("wrong OTP must fail verification")
	}
	if recErr, ok := errors.AsReconError(err); !ok || recErr.Code != errors.CodeOTPRejected {
		t.Errorf("expected otp_rejected, got %v", err)
	}
}

func TestSessionOTPWindowExpires(t *testing.T) {
	server := otpServer(t, "482913")
	defer server.Close()
	m := testSessionManager(t, server)

	now := time.Now()
	m.now = func() time.Time { return now }

	session, _ := m.RequestOTP(context.Background(), "taxpayer1", testGSTIN)

	now = now.Add(11 * time.Minute)
	_, err := m.VerifyOTP(context.Background(), session.ID, "482913")
	if err == nil {
		t.Fatal("OTP past its ten-minute window must be rejected")
	}
	if recErr, ok := errors.AsReconError(err); !ok || recErr.Code != errors.CodeSessionExpired {
		t.Errorf("expected session_expired, got %v", err)
	}
}

func TestVerifiedSessionExpiresAfterSixHours(t *testing.T) {
	server := otpServer(t, "482913")
	defer server.Close()
	m := testSessionManager(t, server)

	now := time.Now()
	m.now = func() time.Time { return now }

	session, _ := m.RequestOTP(context.Background(), "taxpayer1", testGSTIN)
	if _, err := m.VerifyOTP(context.Background(), session.ID, "482913"); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}

	now = now.Add(5 * time.Hour)
	if _, err := m.ValidSession(session.ID); err != nil {
		t.Errorf("session within six hours should be valid: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := m.ValidSession(session.ID); err == nil {
		t.Errorf("session past six hours must be expired")
	}
}

func TestSessionNotFound(t *testing.T) {
	server := otpServer(t, "482913")
	defer server.Close()
	m := testSessionManager(t, server)

	_, err := m.ValidSession("no-such-session")
	if err == nil {
		t.Fatal("unknown session should be rejected")
	}
	if recErr, ok := errors.AsReconError(err); !ok || recErr.Code != errors.CodeSessionNotFound {
		t.Errorf("expected session_not_found, got %v", err)
	}
}

func TestRequestOTPRejectsBadInputs(t *testing.T) {
	server := otpServer(t, "482913")
	defer server.Close()
	m := testSessionManager(t, server)

	if _, err := m.RequestOTP(context.Background(), "taxpayer1", "BAD"); err == nil {
		t.Errorf("invalid GSTIN should be rejected")
	}
	if _, err := m.RequestOTP(context.Background(), "", testGSTIN); err == nil {
		t.Errorf("empty username should be rejected")
	}
}

func TestSessionManagerConcurrentUse(t *testing.T) {
	server := otpServer(t, "482913")
	defer server.Close()
	m := testSessionManager(t, server)

	session, err := m.RequestOTP(context.Background(), "taxpayer1", testGSTIN)
	if err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	if _, err := m.VerifyOTP(context.Background(), session.ID, "482913"); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}

	// Repeated verification, validity checks and cleanup racing against
	// each other must all read and write session state under the lock.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if _, err := m.VerifyOTP(context.Background(), session.ID, "482913"); err != nil {
					t.Errorf("VerifyOTP on verified session: %v", err)
				}
				if _, err := m.ValidSession(session.ID); err != nil {
					t.Errorf("ValidSession: %v", err)
				}
				m.Cleanup()
			}
		}()
	}
	wg.Wait()
}

func TestSessionCleanup(t *testing.T) {
	server := otpServer(t, "482913")
	defer server.Close()
	m := testSessionManager(t, server)

	now := time.Now()
	m.now = func() time.Time { return now }

	m.RequestOTP(context.Background(), "taxpayer1", testGSTIN)
	m.RequestOTP(context.Background(), "taxpayer2", testGSTIN)

	now = now.Add(time.Hour)
	m.RequestOTP(context.Background(), "taxpayer3", testGSTIN)

	if removed := m.Cleanup(); removed != 2 {
		t.Errorf("expected 2 expired sessions removed, got %d", removed)
	}
}
