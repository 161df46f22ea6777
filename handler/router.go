package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const MaxWebhookBodySize = 1 << 20

type router struct {
	webhook *Webhook
	log     *log.Logger
}

// NewRouter serves the webhook at POST /webhook and POST /webhook/{account},
// plus GET /health.
func NewRouter(webhook *Webhook, logger *log.Logger) *chi.Mux {
	rt := &router{webhook, logger}
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Get("/health", rt.health)
	r.Post("/webhook", rt.handleWebhook)
	r.Post("/webhook/{account}", rt.handleWebhook)
	return r
}

func (rt *router) health(w http.ResponseWriter, _ *http.Request) {
	writeJson(w, http.StatusOK, &WebhookResponse{"OK", true})
}

func (rt *router) handleWebhook(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	account := chi.URLParam(req, "account")
	if account != "" {
		ctx = WithAccount(ctx, account)
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, MaxWebhookBodySize))
	if err != nil {
		err = fmt.Errorf("%w: failed to read body: %w", ErrBadPayload, err)
	} else {
		_, err = rt.webhook.Handle(ctx, body)
	}

	status, res := NewWebhookResponse(err)
	writeJson(w, status, res)
	logWebhookResponse(rt.log, uuid.NewString(), req, status, err)
}

func writeJson(w http.ResponseWriter, status int, res *WebhookResponse) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(res)
}

func logWebhookResponse(
	log *log.Logger, reqId string, req *http.Request, status int, err error,
) {
	errMsg := ""
	if err != nil {
		errMsg = ": " + err.Error()
	}

	log.Printf(`%s: %s "%s %s %s" %d%s`,
		reqId,
		req.RemoteAddr, req.Method, req.URL.Path, req.Proto, status,
		errMsg,
	)
}
