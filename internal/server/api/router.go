package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}).Methods("GET")

	a := r.PathPrefix("/auth").Subrouter()
	a.HandleFunc("/registration", s.register).Methods("POST")
	a.HandleFunc("/verify-email", s.verifyEmail).Methods("POST")
	a.HandleFunc("/login", s.login).Methods("POST")
	a.HandleFunc("/logout", s.requireAuth(s.logout)).Methods("GET")
	a.HandleFunc("/refresh", s.refresh).Methods("GET")

	a.HandleFunc("/send-request-to-reset-password", s.requestPasswordReset).Methods("POST")
	a.HandleFunc("/reset-password/{token}", s.resetPassword).Methods("POST")

	a.HandleFunc("/username", s.requireAuth(s.changeUsername)).Methods("PUT")
	a.HandleFunc("/change-password", s.requireAuth(s.changePassword)).Methods("POST")

	a.HandleFunc("/change-email-request", s.requireAuth(s.requestEmailChange)).Methods("POST")
	a.HandleFunc("/send-activation-code-changed-email", s.resendChangeEmailCode).Methods("POST")
	a.HandleFunc("/verify-changed-email", s.confirmEmailChange).Methods("POST")

	return r
}
