package authstore

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// AsOAuth2Token converts a token credential into an *oauth2.Token, for
// handing to an operator-supplied oauth2.TokenSource when a profile's
// credential needs refreshing before use. Grounded on the teacher's
// internal/auth/oauth.go, which carries *oauth2.Token end to end
// through its own provider-exchange flow; this store only needs the
// round trip at its boundary, not the flow itself.
func (c Credential) AsOAuth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken: c.Token,
		TokenType:   "Bearer",
	}
	if c.ExpiresMs > 0 {
		tok.Expiry = time.UnixMilli(c.ExpiresMs)
	}
	return tok
}

// UpdateFromOAuth2Token overwrites profileID's credential with a
// refreshed token, preserving its provider and email. It is the
// caller's responsibility to Save the store afterward.
func (s *Store) UpdateFromOAuth2Token(profileID string, tok *oauth2.Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.Profiles[profileID]
	if !ok {
		return false
	}
	cred.Type = CredentialToken
	cred.Token = tok.AccessToken
	if !tok.Expiry.IsZero() {
		cred.ExpiresMs = tok.Expiry.UnixMilli()
	} else {
		cred.ExpiresMs = 0
	}
	s.Profiles[profileID] = cred
	return true
}

// RefreshOAuthProfile pulls a fresh token for profileID from ts —
// typically an oauth2.Config's TokenSource wrapping the profile's
// current (possibly expired) token — and writes it back via
// UpdateFromOAuth2Token. It does not Save the store; callers that
// want the refresh persisted must do that themselves. This is the
// store's one production call site for the oauth2 conversion helpers:
// the actual OAuth app registration and exchange flow is a gateway
// concern (DESIGN.md), but rotating an already-issued token before a
// resolved profile goes stale belongs here, next to the rest of the
// profile bookkeeping.
func (s *Store) RefreshOAuthProfile(ctx context.Context, profileID string, ts oauth2.TokenSource) error {
	tok, err := ts.Token()
	if err != nil {
		return fmt.Errorf("refresh oauth token for profile %s: %w", profileID, err)
	}
	if !s.UpdateFromOAuth2Token(profileID, tok) {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, profileID)
	}
	return nil
}
