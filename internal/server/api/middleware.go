package api

import (
	"context"
	"net/http"

	"github.com/DmitriyEfimov15/mobcon-server/internal/server/models"
)

type contextKey int

const accountContextKey contextKey = iota

// requireAuth resolves the bearer token into an account before the handler
// runs. Handlers behind it can assume accountFromContext returns non-nil.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := s.credentials.GetAccountFromBearer(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), accountContextKey, account)
		next(w, r.WithContext(ctx))
	}
}

func accountFromContext(ctx context.Context) *models.Account {
	account, _ := ctx.Value(accountContextKey).(*models.Account)
	return account
}
