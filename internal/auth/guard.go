package auth

import (
	"context"
	"fmt"

	"github.com/insight-platform/media-gateway-go/internal/cache"
	"github.com/insight-platform/media-gateway-go/internal/mgerr"
	"github.com/insight-platform/media-gateway-go/internal/mgmodel"
)

// Directory is the subset of directory.Directory AuthGuard depends on.
type Directory interface {
	Get(ctx context.Context, username string) (*mgmodel.UserData, error)
}

// Verifier checks a presented password against a stored hash. Satisfied by
// passwordhash.Verify.
type Verifier func(password, storedHash string) (bool, error)

// Guard implements the basic-auth validation algorithm of spec.md §4.6.
type Guard struct {
	directory  Directory
	verify     Verifier
	credCache  *cache.LruCache[mgmodel.Credentials, mgmodel.BasicAuthCheckResult]
	quarantine *Quarantine // optional; nil disables quarantine checks
}

func NewGuard(dir Directory, verify Verifier, credCache *cache.LruCache[mgmodel.Credentials, mgmodel.BasicAuthCheckResult], quarantine *Quarantine) *Guard {
	return &Guard{directory: dir, verify: verify, credCache: credCache, quarantine: quarantine}
}

// Authenticate runs the six-step algorithm from spec.md §4.6 and returns the
// authenticated UserData on success, or a *mgerr.Error with Kind KindAuth
// (401) / KindDirectory (500) on failure.
func (g *Guard) Authenticate(ctx context.Context, creds mgmodel.Credentials) (*mgmodel.UserData, error) {
	if creds.Password == "" {
		return nil, mgerr.New(mgerr.KindAuth, "authenticate", fmt.Errorf("missing password"))
	}

	if g.quarantine != nil && g.quarantine.InQuarantine(creds.Username) {
		return nil, mgerr.New(mgerr.KindAuth, "authenticate", fmt.Errorf("user %q is quarantined", creds.Username))
	}

	userData, err := g.directory.Get(ctx, creds.Username)
	if err != nil {
		return nil, mgerr.New(mgerr.KindDirectory, "authenticate", err)
	}
	if userData == nil {
		g.registerFailure(creds.Username)
		return nil, mgerr.New(mgerr.KindAuth, "authenticate", fmt.Errorf("unknown user %q", creds.Username))
	}

	if cached, ok := g.credCache.Get(creds); ok && cached.PasswordHash == userData.PasswordHash {
		if cached.Valid {
			g.registerSuccess(creds.Username)
			return userData, nil
		}
		g.registerFailure(creds.Username)
		return nil, mgerr.New(mgerr.KindAuth, "authenticate", fmt.Errorf("cached verdict: invalid credentials"))
	}

	valid, verifyErr := g.verify(creds.Password, userData.PasswordHash)
	g.credCache.Push(creds, mgmodel.BasicAuthCheckResult{Valid: valid && verifyErr == nil, PasswordHash: userData.PasswordHash})

	if verifyErr != nil {
		g.registerFailure(creds.Username)
		return nil, mgerr.New(mgerr.KindAuth, "authenticate", fmt.Errorf("verify: %w", verifyErr))
	}
	if !valid {
		g.registerFailure(creds.Username)
		return nil, mgerr.New(mgerr.KindAuth, "authenticate", fmt.Errorf("invalid credentials"))
	}

	g.registerSuccess(creds.Username)
	return userData, nil
}

func (g *Guard) registerFailure(user string) {
	if g.quarantine != nil {
		g.quarantine.RegisterFailure(user)
	}
}

func (g *Guard) registerSuccess(user string) {
	if g.quarantine != nil {
		g.quarantine.RegisterSuccess(user)
	}
}
