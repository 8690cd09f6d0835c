// Package identity verifies bearer credentials and resolves them to
// user identities. It gates both the one-shot request surface and the
// connection handshake.
package identity

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskhub/errors"
	"taskhub/model"
	"taskhub/store"
)

// Handshake failure messages. The "invalid token" and "jwt expired"
// strings are contractual: the connecting side pattern-matches on them
// to decide whether a credential refresh-and-retry is worthwhile.
const (
	MsgTokenRequired = "authentication token required"
	MsgTokenInvalid  = "invalid token"
	MsgTokenExpired  = "jwt expired"
	MsgUserNotFound  = "user not found"
)

// Identity is a verified actor. Read-only within the core.
type Identity struct {
	ID       primitive.ObjectID
	Username string
	Email    string
	Role     model.Role
}

// IsAdmin reports whether the identity has the admin role.
func (id *Identity) IsAdmin() bool {
	return id.Role == model.RoleAdmin
}

// Ref projects the identity onto its display fields.
func (id *Identity) Ref() model.UserRef {
	return model.UserRef{ID: id.ID.Hex(), Username: id.Username, Email: id.Email}
}

// FromUser builds an identity from a stored user.
func FromUser(u *model.User) *Identity {
	return &Identity{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

// claims is the JWT payload. The userId field name matches the wire
// contract of the token consumers.
type claims struct {
	UserID    string `json:"userId"`
	TokenType string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates access tokens and re-resolves them against the
// identity store, so deleted accounts fail even with a live token.
type Verifier struct {
	secret []byte
	users  store.UserStore
}

// NewVerifier creates a Verifier with the access-token secret.
func NewVerifier(secret []byte, users store.UserStore) *Verifier {
	return &Verifier{secret: secret, users: users}
}

// Verify validates a bearer credential and resolves the identity.
// Pure verification aside from the identity-store read.
func (v *Verifier) Verify(ctx context.Context, credential string) (*Identity, error) {
	if credential == "" {
		return nil, errors.Unauthenticated(MsgTokenRequired)
	}

	parsed, err := decode(credential, v.secret)
	if err != nil {
		return nil, err
	}
	if parsed.TokenType != "" {
		// Refresh tokens never authenticate requests or handshakes.
		return nil, errors.Unauthenticated(MsgTokenInvalid)
	}

	userID, err := primitive.ObjectIDFromHex(parsed.UserID)
	if err != nil {
		return nil, errors.Unauthenticated(MsgTokenInvalid)
	}

	user, err := v.users.FindByID(ctx, userID)
	if err == store.ErrNotFound {
		return nil, errors.Unauthenticated(MsgUserNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "resolving credential subject")
	}

	return FromUser(user), nil
}

// decode parses and validates a token, translating jwt failures into
// the taxonomy. Expiry is distinguished from malformed tokens so the
// caller can run a refresh-and-retry flow.
func decode(credential string, secret []byte) (*claims, error) {
	var c claims
	_, err := jwt.ParseWithClaims(credential, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, stderrors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.Expired(MsgTokenExpired)
		}
		return nil, errors.Unauthenticated(MsgTokenInvalid, errors.WithCause(err))
	}
	return &c, nil
}

// Issuer mints the signed, time-limited tokens the Verifier consumes.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewIssuer creates an Issuer. Access and refresh tokens are signed
// with independent secrets.
func NewIssuer(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// AccessToken mints a short-lived access token for the user.
func (i *Issuer) AccessToken(userID primitive.ObjectID) (string, error) {
	return sign(userID, "", i.accessSecret, i.accessTTL)
}

// RefreshToken mints a long-lived refresh token for the user.
func (i *Issuer) RefreshToken(userID primitive.ObjectID) (string, error) {
	return sign(userID, "refresh", i.refreshSecret, i.refreshTTL)
}

// RefreshTTL returns the refresh-token lifetime, used for cookie expiry.
func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// VerifyRefresh validates a refresh token and returns the subject id.
func (i *Issuer) VerifyRefresh(credential string) (primitive.ObjectID, error) {
	if credential == "" {
		return primitive.NilObjectID, errors.Unauthenticated(MsgTokenRequired)
	}

	parsed, err := decode(credential, i.refreshSecret)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if parsed.TokenType != "refresh" {
		return primitive.NilObjectID, errors.Unauthenticated(MsgTokenInvalid)
	}

	userID, err := primitive.ObjectIDFromHex(parsed.UserID)
	if err != nil {
		return primitive.NilObjectID, errors.Unauthenticated(MsgTokenInvalid)
	}
	return userID, nil
}

func sign(userID primitive.ObjectID, tokenType string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID:    userID.Hex(),
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(secret)
}
