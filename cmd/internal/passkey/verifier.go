package passkey

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/oklog/ulid/v2"

	"humanpass/cmd/internal/kv"
	"humanpass/cmd/internal/session"
)

const (
	registerChallengePrefix = "challenge:register:"
	loginChallengePrefix    = "challenge:login:"
)

var (
	// ErrChallengeExpired reports a missing or expired ceremony challenge.
	ErrChallengeExpired = errors.New("passkey: challenge expired or not found")
	// ErrBlockedAuthenticator reports a registration from a known
	// emulator authenticator.
	ErrBlockedAuthenticator = errors.New("passkey: authenticator type not allowed")
	// ErrVerificationFailed reports a ceremony response that did not
	// validate.
	ErrVerificationFailed = errors.New("passkey: verification failed")
)

// Verifier runs the registration and login ceremonies. Challenges live
// in the TTL store so they expire and cannot be replayed; credentials
// live in the durable Store.
type Verifier struct {
	cfg   Config
	store Store
	kv    kv.Store
	now   func() time.Time
}

// NewVerifier constructs a Verifier.
func NewVerifier(cfg Config, store Store, kvStore kv.Store) *Verifier {
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 300 * time.Second
	}
	return &Verifier{
		cfg:   cfg,
		store: store,
		kv:    kvStore,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the verifier's time source. Test helper.
func (v *Verifier) SetClock(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

// RPContext derives the relying-party ID and origin from the request
// Host. The rpID is the host without port; localhost and loopback hosts
// get an http origin, everything else https. An empty host falls back
// to the configured values.
func (v *Verifier) RPContext(host string) (rpID, origin string) {
	host = strings.TrimSpace(host)
	if host == "" {
		return v.cfg.RPID, v.cfg.RPOrigin
	}
	rpID = hostWithoutPort(host)
	scheme := "https"
	if session.IsDevHost(host) {
		scheme = "http"
	}
	return rpID, scheme + "://" + host
}

func hostWithoutPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func (v *Verifier) rp(host string) (*webauthn.WebAuthn, error) {
	rpID, origin := v.RPContext(host)
	return webauthn.New(&webauthn.Config{
		RPDisplayName: v.cfg.RPDisplayName,
		RPID:          rpID,
		RPOrigins:     []string{origin},
	})
}

// BeginRegistration mints a fresh user ID, generates creation options
// for a platform authenticator, and parks the ceremony state in the TTL
// store under the user ID.
func (v *Verifier) BeginRegistration(ctx context.Context, host string) (*protocol.CredentialCreation, string, error) {
	rp, err := v.rp(host)
	if err != nil {
		return nil, "", err
	}

	userID, err := newUserID(v.now())
	if err != nil {
		return nil, "", err
	}

	creation, sessionData, err := rp.BeginRegistration(
		&webauthnUser{id: userID},
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			ResidentKey:             protocol.ResidentKeyRequirementPreferred,
			UserVerification:        protocol.VerificationRequired,
		}),
		webauthn.WithConveyancePreference(protocol.PreferDirectAttestation),
	)
	if err != nil {
		return nil, "", err
	}

	if err := v.putChallenge(ctx, registerChallengePrefix+userID, sessionData); err != nil {
		return nil, "", err
	}
	return creation, userID, nil
}

// FinishRegistration validates the attestation response, enforces the
// emulator blocklist, persists the user and credential, and returns the
// new user. The challenge is consumed regardless of outcome.
func (v *Verifier) FinishRegistration(ctx context.Context, host, userID string, response []byte) (User, error) {
	sessionData, err := v.takeChallenge(ctx, registerChallengePrefix+userID)
	if err != nil {
		return User{}, err
	}

	parsed, err := protocol.ParseCredentialCreationResponseBytes(response)
	if err != nil {
		return User{}, errors.Join(ErrVerificationFailed, err)
	}

	rp, err := v.rp(host)
	if err != nil {
		return User{}, err
	}

	credential, err := rp.CreateCredential(&webauthnUser{id: userID}, sessionData, parsed)
	if err != nil {
		return User{}, errors.Join(ErrVerificationFailed, err)
	}

	if blockedAuthenticator(credential.Authenticator.AAGUID, parsed.Response.AttestationObject.Format) {
		return User{}, ErrBlockedAuthenticator
	}

	now := v.now()
	u := User{ID: userID, CreatedAt: now}
	if err := v.store.CreateUser(ctx, u); err != nil {
		return User{}, err
	}
	rec, err := encodeCredential(userID, *credential, now)
	if err != nil {
		return User{}, err
	}
	if err := v.store.CreateCredential(ctx, rec); err != nil {
		return User{}, err
	}
	return u, nil
}

// BeginLogin generates assertion options for discoverable credentials
// and parks the ceremony state keyed by the challenge itself, since no
// user is known yet.
func (v *Verifier) BeginLogin(ctx context.Context, host string) (*protocol.CredentialAssertion, error) {
	rp, err := v.rp(host)
	if err != nil {
		return nil, err
	}

	assertion, sessionData, err := rp.BeginDiscoverableLogin(
		webauthn.WithUserVerification(protocol.VerificationRequired),
	)
	if err != nil {
		return nil, err
	}

	if err := v.putChallenge(ctx, loginChallengePrefix+sessionData.Challenge, sessionData); err != nil {
		return nil, err
	}
	return assertion, nil
}

// FinishLogin validates the assertion response against the parked
// challenge and the stored credential, updates the sign counter, and
// returns the authenticated user. The challenge is consumed before
// validation to prevent replay.
func (v *Verifier) FinishLogin(ctx context.Context, host string, response []byte) (User, error) {
	parsed, err := protocol.ParseCredentialRequestResponseBytes(response)
	if err != nil {
		return User{}, errors.Join(ErrVerificationFailed, err)
	}

	sessionData, err := v.takeChallenge(ctx, loginChallengePrefix+parsed.Response.CollectedClientData.Challenge)
	if err != nil {
		return User{}, err
	}

	rp, err := v.rp(host)
	if err != nil {
		return User{}, err
	}

	validated, credential, err := rp.ValidatePasskeyLogin(v.discoverUser(ctx), sessionData, parsed)
	if err != nil {
		return User{}, errors.Join(ErrVerificationFailed, err)
	}

	wu, ok := validated.(*webauthnUser)
	if !ok {
		return User{}, ErrVerificationFailed
	}

	u, err := v.store.GetUser(ctx, wu.id)
	if err != nil {
		return User{}, err
	}

	rec, err := encodeCredential(u.ID, *credential, v.now())
	if err != nil {
		return User{}, err
	}
	if err := v.store.UpdateCredential(ctx, rec); err != nil {
		return User{}, err
	}
	return u, nil
}

// discoverUser resolves the asserting user from the user handle the
// authenticator returns, or from the credential ID when the handle is
// absent.
func (v *Verifier) discoverUser(ctx context.Context) webauthn.DiscoverableUserHandler {
	return func(rawID, userHandle []byte) (webauthn.User, error) {
		userID := string(userHandle)
		if userID == "" {
			rec, err := v.store.GetCredential(ctx, encodeCredentialID(rawID))
			if err != nil {
				return nil, err
			}
			userID = rec.UserID
		}

		records, err := v.store.ListCredentialsByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		creds, err := decodeCredentials(records)
		if err != nil {
			return nil, err
		}
		if len(creds) == 0 {
			return nil, ErrNotFound
		}
		return &webauthnUser{id: userID, credentials: creds}, nil
	}
}

func (v *Verifier) putChallenge(ctx context.Context, key string, sessionData *webauthn.SessionData) error {
	payload, err := json.Marshal(sessionData)
	if err != nil {
		return err
	}
	return v.kv.Put(ctx, key, payload, v.cfg.ChallengeTTL)
}

// takeChallenge loads and deletes the parked ceremony state in one go.
func (v *Verifier) takeChallenge(ctx context.Context, key string) (webauthn.SessionData, error) {
	raw, ok, err := v.kv.Get(ctx, key)
	if err != nil {
		return webauthn.SessionData{}, err
	}
	if !ok {
		return webauthn.SessionData{}, ErrChallengeExpired
	}
	if err := v.kv.Delete(ctx, key); err != nil {
		return webauthn.SessionData{}, err
	}

	var sessionData webauthn.SessionData
	if err := json.Unmarshal(raw, &sessionData); err != nil {
		return webauthn.SessionData{}, ErrChallengeExpired
	}
	return sessionData, nil
}

func newUserID(now time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func encodeCredentialID(id []byte) string {
	return base64.RawURLEncoding.EncodeToString(id)
}

func encodeCredential(userID string, credential webauthn.Credential, now time.Time) (Credential, error) {
	payload, err := json.Marshal(credential)
	if err != nil {
		return Credential{}, err
	}
	return Credential{
		CredentialID:   encodeCredentialID(credential.ID),
		UserID:         userID,
		CredentialJSON: payload,
		CreatedAt:      now,
	}, nil
}

func decodeCredentials(records []Credential) ([]webauthn.Credential, error) {
	if len(records) == 0 {
		return nil, nil
	}
	out := make([]webauthn.Credential, 0, len(records))
	for _, rec := range records {
		var c webauthn.Credential
		if err := json.Unmarshal(rec.CredentialJSON, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// webauthnUser adapts a user record to the shape the ceremony library
// expects. The ID doubles as the account name; there is no profile.
type webauthnUser struct {
	id          string
	credentials []webauthn.Credential
}

func (u *webauthnUser) WebAuthnID() []byte                         { return []byte(u.id) }
func (u *webauthnUser) WebAuthnName() string                       { return u.id }
func (u *webauthnUser) WebAuthnDisplayName() string                { return u.id }
func (u *webauthnUser) WebAuthnIcon() string                       { return "" }
func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }
