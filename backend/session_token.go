package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

const sessionTokenIssuer = "dev-radar"

var errInvalidSessionToken = errors.New("invalid session token")

// sessionTokens signs and verifies HS256 tokens bound to one live connection. The token lets a
// plain HTTP client update the criteria of a websocket session it owns.
type sessionTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func newSessionTokens(secret []byte, ttl time.Duration) *sessionTokens {
	return &sessionTokens{secret: secret, ttl: ttl, now: time.Now}
}

func (t *sessionTokens) issue(connectionID string) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Issuer:    sessionTokenIssuer,
		Subject:   connectionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// connectionID verifies tokenStr and returns the connection it is bound to.
func (t *sessionTokens) connectionID(tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithIssuer(sessionTokenIssuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", errInvalidSessionToken
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if len(auth) < 8 || !strings.EqualFold(auth[:7], "Bearer ") {
		return "", false
	}
	return strings.TrimSpace(auth[7:]), true
}

// regionHandler handles POST /sessions/{id}/region: an explicit criteria update for a live
// session, authorized by the token issued on connect.
func regionHandler(registry *radar.SessionRegistry, tokens *sessionTokens, limits radiusLimits) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		tokenStr, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		bound, err := tokens.connectionID(tokenStr)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		if bound != id {
			writeError(w, http.StatusForbidden, "token_not_for_session")
			return
		}
		var msg criteriaMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		session, err := applyCriteria(registry, limits, id, msg)
		if err != nil {
			writeRadarError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionView(session))
	}
}
