package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/poly-workshop/authlink/internal/application/authlink"
	"github.com/poly-workshop/authlink/internal/domain"
)

const maxRequestBody = 64 << 10

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var kindStatus = map[domain.ErrorKind]int{
	domain.KindMalformedState:          http.StatusBadRequest,
	domain.KindUnknownOrExpiredAttempt: http.StatusBadRequest,
	domain.KindStateMismatch:           http.StatusForbidden,
	domain.KindAccessDenied:            http.StatusForbidden,
	domain.KindExchangeFailure:         http.StatusBadGateway,
	domain.KindTransportFailure:        http.StatusGatewayTimeout,
	domain.KindPersistenceFailure:      http.StatusInternalServerError,
	domain.KindServiceNotFound:         http.StatusNotFound,
	domain.KindNotLinked:               http.StatusNotFound,
	domain.KindInvalidArgument:         http.StatusBadRequest,
	domain.KindInternal:                http.StatusInternalServerError,
}

func statusForKind(kind domain.ErrorKind) int {
	if code, ok := kindStatus[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func (g *Gateway) callback(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	outcome, err := g.svc.HandleAuthorizationResponse(r.Context(), authlink.Callback{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	http.Redirect(w, r, outcome.RedirectURL, http.StatusFound)
}

func (g *Gateway) authorize(w http.ResponseWriter, r *http.Request, params map[string]string) {
	redirect, err := g.svc.StartAuthorization(r.Context(), params["alias"])
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, redirect.URL, http.StatusFound)
}

func (g *Gateway) listServices(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	services, err := g.svc.ListServices(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string]any{"services": services})
}

func (g *Gateway) getStatus(w http.ResponseWriter, r *http.Request, params map[string]string) {
	status, err := g.svc.GetStatus(r.Context(), params["alias"])
	respond(r.Context(), w, status, err)
}

func (g *Gateway) saveToken(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var manual authlink.ManualToken
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&manual); err != nil {
		writeError(r.Context(), w, domain.NewError(domain.KindInvalidArgument, params["alias"], err))
		return
	}
	status, err := g.svc.SaveToken(r.Context(), params["alias"], manual)
	respond(r.Context(), w, status, err)
}

func (g *Gateway) generateToken(w http.ResponseWriter, r *http.Request, params map[string]string) {
	status, err := g.svc.GenerateToken(r.Context(), params["alias"])
	respond(r.Context(), w, status, err)
}

func (g *Gateway) refresh(w http.ResponseWriter, r *http.Request, params map[string]string) {
	status, err := g.svc.RefreshAccess(r.Context(), params["alias"])
	respond(r.Context(), w, status, err)
}

func (g *Gateway) revoke(w http.ResponseWriter, r *http.Request, params map[string]string) {
	if err := g.svc.RevokeAccess(r.Context(), params["alias"]); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) sample(w http.ResponseWriter, r *http.Request, params map[string]string) {
	resp, err := g.svc.SendSampleRequest(r.Context(), params["alias"], r.URL.Query().Get("path"))
	respond(r.Context(), w, resp, err)
}

func respond(ctx context.Context, w http.ResponseWriter, body any, err error) {
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, body)
}

// writeError renders the fixed public message for err's kind. Causes are
// logged, never returned.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	code := statusForKind(kind)
	if code >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "request failed", "kind", kind, "error", err)
	} else {
		slog.InfoContext(ctx, "request rejected", "kind", kind, "error", err)
	}
	writeJSON(ctx, w, code, errorBody{Error: string(kind), Message: kind.PublicMessage()})
}

func writeUnauthenticated(ctx context.Context, w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="authlink"`)
	writeJSON(ctx, w, http.StatusUnauthorized, errorBody{Error: "unauthenticated", Message: "authentication required"})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.WarnContext(ctx, "failed to write response", "error", err)
	}
}
