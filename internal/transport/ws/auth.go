package ws

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned when the upgrade request carries no token or an
// invalid one.
var ErrUnauthorized = errors.New("ws: unauthorized")

// authenticator verifies the JWT bearer token on the websocket upgrade
// request. Tokens are HMAC-signed (HS256) with the shared server secret.
type authenticator struct {
	secret []byte
}

// verify extracts and validates the token from r. Browsers cannot set headers
// on a WebSocket upgrade, so the token is accepted either as an Authorization
// bearer header or as a "token" query parameter. Returns the token subject.
func (a *authenticator) verify(r *http.Request) (string, error) {
	raw := bearerToken(r)
	if raw == "" {
		return "", fmt.Errorf("%w: missing token", ErrUnauthorized)
	}

	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	return sub, nil
}

// bearerToken pulls the raw token from the Authorization header or the
// "token" query parameter, in that order.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return tok
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
