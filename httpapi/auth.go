package httpapi

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"taskhub/errors"
	"taskhub/identity"
	"taskhub/model"
	"taskhub/store"
)

const refreshCookie = "refreshToken"

const (
	usernameMinLen = 3
	usernameMaxLen = 30
	passwordMinLen = 6
)

// userPayload is the client projection of an account.
type userPayload struct {
	ID       string     `json:"id"`
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Role     model.Role `json:"role"`
}

func userFrom(u *model.User) *userPayload {
	return &userPayload{ID: u.ID.Hex(), Username: u.Username, Email: u.Email, Role: u.Role}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in *registerRequest) validate() error {
	var bad []string
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if n := utf8.RuneCountInString(in.Username); n < usernameMinLen || n > usernameMaxLen {
		bad = append(bad, "username")
	}
	if !strings.Contains(in.Email, "@") {
		bad = append(bad, "email")
	}
	if len(in.Password) < passwordMinLen {
		bad = append(bad, "password")
	}
	if len(bad) > 0 {
		return errors.Validation("invalid registration fields", errors.WithFields(bad...))
	}
	return nil
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		fail(w, errors.Validation("malformed request body"))
		return
	}
	if err := in.validate(); err != nil {
		fail(w, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		fail(w, errors.Internal("hash failed", errors.WithCause(err)))
		return
	}

	// New accounts are members; admins are provisioned out of band.
	created, err := a.users.Insert(r.Context(), &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         model.RoleMember,
	})
	if err != nil {
		if stderrors.Is(err, store.ErrDuplicate) {
			fail(w, a.duplicateAccount(r, &in, err))
			return
		}
		fail(w, errors.Internal("registration failed", errors.WithCause(err)))
		return
	}

	a.issueTokens(w, created, http.StatusCreated, "account created")
}

// duplicateAccount names the colliding field so the client can mark it.
// The unique index rejection does not say which key collided, so we look
// the username up; anything else must be the email.
func (a *API) duplicateAccount(r *http.Request, in *registerRequest, cause error) error {
	if _, err := a.users.FindByUsername(r.Context(), in.Username); err == nil {
		return errors.WrapWithCode(cause, errors.CodeConflict,
			"username already in use", errors.WithField("username"))
	}
	return errors.WrapWithCode(cause, errors.CodeConflict,
		"email already in use", errors.WithField("email"))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		fail(w, errors.Validation("malformed request body"))
		return
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	user, err := a.users.FindByEmail(r.Context(), email)
	if err != nil {
		// Same answer for unknown email and wrong password.
		fail(w, errors.Unauthenticated("invalid credentials"))
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		fail(w, errors.Unauthenticated("invalid credentials"))
		return
	}

	a.issueTokens(w, user, http.StatusOK, "logged in")
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookie)
	if err != nil {
		fail(w, errors.Unauthenticated(identity.MsgTokenRequired))
		return
	}

	userID, err := a.issuer.VerifyRefresh(cookie.Value)
	if err != nil {
		fail(w, err)
		return
	}

	user, err := a.users.FindByID(r.Context(), userID)
	if err != nil {
		fail(w, errors.Unauthenticated(identity.MsgUserNotFound))
		return
	}

	a.issueTokens(w, user, http.StatusOK, "token refreshed")
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     "/api/auth",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	ok(w, http.StatusOK, "logged out", nil)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request, actor *identity.Identity) {
	user, err := a.users.FindByID(r.Context(), actor.ID)
	if err != nil {
		fail(w, errors.Unauthenticated(identity.MsgUserNotFound))
		return
	}
	ok(w, http.StatusOK, "", userFrom(user))
}

// issueTokens mints the access/refresh pair: access token in the body,
// refresh token in an HttpOnly cookie scoped to the auth endpoints.
func (a *API) issueTokens(w http.ResponseWriter, user *model.User, status int, message string) {
	access, err := a.issuer.AccessToken(user.ID)
	if err != nil {
		fail(w, errors.Internal("token mint failed", errors.WithCause(err)))
		return
	}
	refresh, err := a.issuer.RefreshToken(user.ID)
	if err != nil {
		fail(w, errors.Internal("token mint failed", errors.WithCause(err)))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    refresh,
		Path:     "/api/auth",
		Expires:  time.Now().Add(a.issuer.RefreshTTL()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	ok(w, status, message, map[string]interface{}{
		"user":        userFrom(user),
		"accessToken": access,
	})
}
