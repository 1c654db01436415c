package providers

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// graceWindow is how long before real expiry a cached token is already
// treated as expired, per spec.md §4.2's cache invariants.
const graceWindow = 5 * time.Minute

// DeviceCodePrompt is invoked once a device/user code is obtained, so the
// caller can display it (spec.md §4.2 step 2). Implementations must not
// block indefinitely.
type DeviceCodePrompt func(userCode, verificationURI string)

// cachedToken is the on-disk shape of a persisted device-code token,
// grounded on the mkdir-then-WriteFile-0600 persistence pattern of
// internal/auth/profiles.go's SaveProfileStore, narrowed here to a
// single token rather than a multi-profile rotation store.
type cachedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Expiry      time.Time `json:"expiry"`
}

func (t *cachedToken) expired() bool {
	if t == nil || t.AccessToken == "" {
		return true
	}
	if t.Expiry.IsZero() {
		return false
	}
	return time.Now().Add(graceWindow).After(t.Expiry)
}

// DeviceCodeAuth implements the OAuth device-authorization flow of
// spec.md §4.2 on top of golang.org/x/oauth2's own DeviceAuth/
// DeviceAccessToken support — no bespoke device-code client is written,
// since the retrieval pack has no example of this flow (confirmed by
// grep across _examples/) but the already-imported oauth2 package
// implements RFC 8628 directly.
type DeviceCodeAuth struct {
	Config     oauth2.Config
	CachePath  string
	Prompt     DeviceCodePrompt

	mu    sync.Mutex
	token *cachedToken
}

// NewDeviceCodeAuth constructs a DeviceCodeAuth, loading any previously
// cached token from cachePath so a re-started process does not re-prompt
// the user (spec.md S6).
func NewDeviceCodeAuth(cfg oauth2.Config, cachePath string, prompt DeviceCodePrompt) *DeviceCodeAuth {
	a := &DeviceCodeAuth{Config: cfg, CachePath: cachePath, Prompt: prompt}
	a.token, _ = loadCachedToken(cachePath)
	return a
}

// AuthHeader returns the bearer header for the current cached token. The
// caller is expected to have ensured NeedsRefresh() is false first.
func (a *DeviceCodeAuth) AuthHeader(context.Context) (Header, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token == nil || a.token.AccessToken == "" {
		return Header{}, false, NewError(KindAuth, "no cached device-code token")
	}
	return Header{Name: "Authorization", Value: "Bearer " + a.token.AccessToken}, true, nil
}

// NeedsRefresh reports true iff there is no token, it is expired, or it
// is within the grace window (spec.md §4.2 cache invariants).
func (a *DeviceCodeAuth) NeedsRefresh() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token.expired()
}

// Refresh runs the device-authorization flow end to end. Concurrent
// callers are serialized by a.mu (single-flight per authenticator
// instance, per spec.md §4.2).
func (a *DeviceCodeAuth) Refresh(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.token.expired() {
		return nil // another caller already refreshed while we waited for the lock
	}

	resp, err := a.Config.DeviceAuth(ctx)
	if err != nil {
		return Wrap(KindAuth, err, "request device code")
	}
	if a.Prompt != nil {
		a.Prompt(resp.UserCode, resp.VerificationURI)
	}

	tok, err := a.Config.DeviceAccessToken(ctx, resp)
	if err != nil {
		return classifyDeviceError(err)
	}

	ct := &cachedToken{AccessToken: tok.AccessToken, TokenType: tok.TokenType, Expiry: tok.Expiry}
	if err := saveCachedToken(a.CachePath, ct); err != nil {
		return Wrap(KindInternal, err, "persist device-code token")
	}
	a.token = ct
	return nil
}

// classifyDeviceError maps oauth2's device-flow errors onto spec.md's
// Auth{TokenExpired|DeviceCodeExpired|AccessDenied|Failed} taxonomy.
func classifyDeviceError(err error) *Error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.ErrorCode != "" {
		switch rErr.ErrorCode {
		case "expired_token":
			return &Error{Kind: KindAuth, AuthReason: AuthDeviceCodeExpired, Message: "device code expired", Cause: err}
		case "access_denied":
			return &Error{Kind: KindAuth, AuthReason: AuthAccessDenied, Message: "user denied access", Cause: err}
		}
	}
	return &Error{Kind: KindAuth, AuthReason: AuthFailed, Message: err.Error(), Cause: err}
}

func loadCachedToken(path string) (*cachedToken, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var t cachedToken
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func saveCachedToken(path string, t *cachedToken) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
