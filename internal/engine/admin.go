package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/feedsync/internal/common"
	"github.com/dmitrijs2005/feedsync/internal/timex"
)

// The admin endpoint is a loopback control surface for the CLI: status
// inspection, follow registry changes and rescue triggers. It is not meant
// to face the network.

type addressRequest struct {
	Address string `json:"address"`
}

type rescueRequest struct {
	Address string `json:"address"`
	Edition int64  `json:"edition"`
}

type settingsRequest struct {
	InsertionDelay timex.Duration `json:"insertion_delay"`
}

func (e *Engine) serveAdmin(ctx context.Context) error {
	srv := &http.Server{Addr: e.adminAddr, Handler: e.adminHandler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	e.log.Info(ctx, "admin endpoint listening", "addr", e.adminAddr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (e *Engine) adminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", e.handleStatus)
	mux.HandleFunc("POST /documents", e.handleCreate)
	mux.HandleFunc("POST /follow", e.handleFollow)
	mux.HandleFunc("POST /unfollow", e.handleUnfollow)
	mux.HandleFunc("POST /rescue", e.handleRescue)
	mux.HandleFunc("PUT /settings", e.handleSettings)
	return mux
}

func (e *Engine) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, e.Status())
}

func (e *Engine) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := e.CreateLocal(r.Context(), req.Address); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (e *Engine) handleFollow(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := e.Follow(r.Context(), req.Address); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (e *Engine) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := e.Unfollow(r.Context(), req.Address); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *Engine) handleRescue(w http.ResponseWriter, r *http.Request) {
	var req rescueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := e.Rescue(r.Context(), req.Address, req.Edition); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (e *Engine) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e.settings.SetInsertionDelay(req.InsertionDelay.Duration)
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrUnknownDocument), errors.Is(err, common.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, common.ErrDocumentExists):
		code = http.StatusConflict
	case errors.Is(err, common.ErrRescueBusy):
		code = http.StatusConflict
	case errors.Is(err, common.ErrNotLocal):
		code = http.StatusBadRequest
	}
	http.Error(w, err.Error(), code)
}
