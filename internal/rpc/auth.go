package rpc

import (
	"crypto/subtle"
	"net/http"
	"sort"
	"strings"

	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
)

// credential binds a bearer token to the caller id it authenticates.
type credential struct {
	caller string
	token  []byte
}

func newCredentials(tokens map[string]string) []credential {
	creds := make([]credential, 0, len(tokens))
	for caller, token := range tokens {
		creds = append(creds, credential{caller: caller, token: []byte(token)})
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].caller < creds[j].caller })
	return creds
}

// authenticate resolves the caller of r. A request carrying a bearer token
// acts as the token's caller; CallerHeader, when also set, must name the
// same caller. A request without a token acts as wallet.Anonymous and may
// not claim any other identity.
func (s *Server) authenticate(r *http.Request) (string, *Error) {
	claimed := strings.TrimSpace(r.Header.Get(CallerHeader))

	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		if claimed != "" && claimed != wallet.Anonymous {
			return "", &Error{Code: CodeUnauthorized, Message: "caller " + claimed + " requires a bearer token"}
		}
		return wallet.Anonymous, nil
	}
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", &Error{Code: CodeUnauthorized, Message: "malformed Authorization header"}
	}
	caller, found := s.lookupToken([]byte(strings.TrimSpace(token)))
	if !found {
		return "", &Error{Code: CodeUnauthorized, Message: "invalid bearer token"}
	}
	if claimed != "" && claimed != caller {
		return "", &Error{Code: CodeUnauthorized, Message: "caller does not match bearer token"}
	}
	return caller, nil
}

// lookupToken compares against every credential so the time taken does
// not depend on which one matched.
func (s *Server) lookupToken(token []byte) (string, bool) {
	var caller string
	found := false
	for _, c := range s.credentials {
		if subtle.ConstantTimeCompare(c.token, token) == 1 && !found {
			caller, found = c.caller, true
		}
	}
	return caller, found
}
