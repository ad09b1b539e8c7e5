package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"brokerage_ledger/internal/handlers"
	"brokerage_ledger/internal/transport/auth"
)

type Server struct {
	httpServer *http.Server
}

func NewServer(port string, h *handlers.Handlers, a *auth.Authenticator) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%s", port),
			Handler:      Routes(h, a),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Routes mounts /health unauthenticated and everything else behind the
// session middleware; writes also need a role that can modify plans.
func Routes(h *handlers.Handlers, a *auth.Authenticator) http.Handler {
	api := http.NewServeMux()
	read := func(fn http.HandlerFunc) http.Handler { return fn }
	write := func(fn http.HandlerFunc) http.Handler { return auth.RequireWrite(fn) }

	api.Handle("POST /plans", write(h.CreatePlan))
	api.Handle("GET /clients/{id}/plans", read(h.ListClientPlans))
	api.Handle("GET /plans/{id}", read(h.GetPlan))
	api.Handle("PATCH /plans/{id}", write(h.UpdatePlan))
	api.Handle("POST /plans/{id}/deactivate", write(h.DeactivatePlan))
	api.Handle("DELETE /plans/{id}", write(h.DeletePlan))

	api.Handle("GET /plans/{id}/ledger", read(h.GetLedger))
	api.Handle("GET /plans/{id}/statement.xlsx", read(h.Statement))
	api.Handle("POST /plans/{id}/payments", write(h.RecordPayment))
	api.Handle("PATCH /plans/{id}/payments/{paymentID}", write(h.AmendPayment))
	api.Handle("DELETE /plans/{id}/payments/{paymentID}", write(h.RetirePayment))
	api.Handle("GET /plans/{id}/payments/{paymentID}/receipt", read(h.Receipt))

	api.Handle("POST /imports", write(h.UploadImport))
	api.Handle("POST /imports/run", write(h.RunImport))
	api.Handle("GET /imports/{id}", read(h.GetImport))

	api.Handle("GET /notifications", read(h.Notifications))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("/", cors(a.Middleware(api)))
	return mux
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shCtx)
	case err := <-errCh:
		return err
	}
}
