package apiserver

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/kubev2v/workflow-dispatcher/internal/dispatch"
)

type HealthReply struct {
	Status string `json:"status"`
}

type StatusReply struct {
	dispatch.Snapshot
}

type ErrorReply struct {
	Message string `json:"message"`
}

func (h HealthReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (s StatusReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (e ErrorReply) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, http.StatusServiceUnavailable)
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	_ = render.Render(w, r, HealthReply{Status: "ok"})
}

func statusHandler(status StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, ok := status.Snapshot()
		if !ok {
			_ = render.Render(w, r, ErrorReply{Message: "no run started yet"})
			return
		}
		_ = render.Render(w, r, StatusReply{Snapshot: snapshot})
	}
}
