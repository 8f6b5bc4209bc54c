// Package server exposes the rule store and the watcher over HTTP for
// scheduled (cron) invocation and for the dashboard front-end.
//
//	GET    /healthz
//	GET    /metrics
//	GET    /api/cpa-rules?account_id=
//	POST   /api/cpa-rules?account_id=   {"rules": {...}}
//	DELETE /api/cpa-rules?account_id=
//	POST   /api/cpa-run?account_id=&since=&until=&dry_run=
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/joinads"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/meta"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/store"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/watch"
)

// Ticker runs one watcher tick. *watch.Watcher implements it.
type Ticker interface {
	Tick(ctx context.Context, opts watch.TickOptions) (*model.WatchReport, error)
}

// Options configures the router.
type Options struct {
	Log     *slog.Logger
	Rules   store.RuleStore
	Watcher Ticker
	Metrics http.Handler // nil disables /metrics
	Secret  string       // empty disables the cpa-run secret check
	Timeout time.Duration
}

type server struct {
	log     *slog.Logger
	rules   store.RuleStore
	watcher Ticker
	secret  string
}

// NewRouter builds the HTTP handler.
func NewRouter(o Options) http.Handler {
	if o.Log == nil {
		o.Log = slog.Default()
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Minute
	}
	s := &server{log: o.Log, rules: o.Rules, watcher: o.Watcher, secret: o.Secret}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(o.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(o.Timeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if o.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", o.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/cpa-rules", s.getRules)
		r.Post("/cpa-rules", s.saveRules)
		r.Delete("/cpa-rules", s.deleteRules)
		r.With(s.requireSecret).Post("/cpa-run", s.run)
	})
	return r
}

// requestLogger logs one line per request after it completes.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.String("rid", middleware.GetReqID(r.Context())),
				slog.Duration("latency", time.Since(start)),
			)
		})
	}
}

// requireSecret accepts the secret in the x-cron-secret header or the
// secret query parameter.
func (s *server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.secret != "" {
			got := r.Header.Get("x-cron-secret")
			if got == "" {
				got = r.URL.Query().Get("secret")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// ─── Rules ────────────────────────────────────────────────────────────────────

type rulesPayload struct {
	Rules model.RuleSet `json:"rules" validate:"required"`
}

type ruleCheck struct {
	Name     string   `json:"name" validate:"max=200"`
	AdsetIDs []string `json:"adset_ids" validate:"max=500,dive,required,numeric"`
	CPA      *float64 `json:"cpa" validate:"omitempty,gte=0"`
	Spend    *float64 `json:"spend" validate:"omitempty,gte=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

func accountParam(r *http.Request) string {
	if a := strings.TrimSpace(r.URL.Query().Get("account_id")); a != "" {
		return a
	}
	return store.DefaultAccount
}

func (s *server) getRules(w http.ResponseWriter, r *http.Request) {
	doc, err := s.rules.Load(r.Context(), accountParam(r))
	if err != nil {
		s.fail(w, r, fmt.Errorf("reading rules: %w", err))
		return
	}
	rules := doc.Rules
	if rules == nil {
		rules = model.RuleSet{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": "success", "data": rules, "updated_at": doc.UpdatedAt})
}

func (s *server) saveRules(w http.ResponseWriter, r *http.Request) {
	var body rulesPayload
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := validateRules(body.Rules); err != nil {
		s.fail(w, r, err)
		return
	}
	doc, err := s.rules.Save(r.Context(), accountParam(r), body.Rules)
	if err != nil {
		s.fail(w, r, fmt.Errorf("saving rules: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": "success", "data": doc.Rules})
}

func validateRules(rules model.RuleSet) error {
	if err := validate.Struct(rulesPayload{Rules: rules}); err != nil {
		return validationError("rules", err)
	}
	for _, rule := range rules.Sorted() {
		if strings.TrimSpace(rule.GroupKey) == "" {
			return &util.ValidationError{Fields: []string{"rules"}, Reason: "group key must not be empty"}
		}
		chk := ruleCheck{Name: rule.GroupName, AdsetIDs: rule.AdsetIDs, CPA: rule.MaxCPA, Spend: rule.MaxSpend}
		if err := validate.Struct(chk); err != nil {
			return validationError("rules."+rule.GroupKey, err)
		}
	}
	return nil
}

func validationError(prefix string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &util.ValidationError{Fields: []string{prefix}, Reason: err.Error()}
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, prefix+"."+fe.Field())
	}
	return &util.ValidationError{Fields: fields, Reason: "invalid value"}
}

func (s *server) deleteRules(w http.ResponseWriter, r *http.Request) {
	if err := s.rules.Delete(r.Context(), accountParam(r)); err != nil {
		s.fail(w, r, fmt.Errorf("deleting rules: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": "success"})
}

// ─── Watch ────────────────────────────────────────────────────────────────────

func (s *server) run(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	account := strings.TrimSpace(q.Get("account_id"))
	if account == "" {
		s.fail(w, r, &util.ValidationError{Fields: []string{"account_id"}, Reason: "required"})
		return
	}
	dry, _ := strconv.ParseBool(q.Get("dry_run"))

	report, err := s.watcher.Tick(r.Context(), watch.TickOptions{
		AccountID: account,
		Since:     q.Get("since"),
		Until:     q.Get("until"),
		DryRun:    dry,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := map[string]any{
		"code":    "success",
		"run_id":  report.RunID,
		"paused":  report.Paused,
		"skipped": report.Skipped,
		"since":   report.Since,
		"until":   report.Until,
	}
	if report.Rules == 0 {
		resp["message"] = "no rules"
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─── Responses ────────────────────────────────────────────────────────────────

// fail maps an error to a status code. Upstream errors carry their raw
// payload in details.
func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := map[string]any{"error": err.Error()}

	var (
		verr    *util.ValidationError
		metaErr *meta.APIError
		jaErr   *joinads.APIError
	)
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		body["fields"] = verr.Fields
	case errors.Is(err, watch.ErrTickInProgress):
		status = http.StatusConflict
	case errors.As(err, &metaErr):
		status = http.StatusBadGateway
		body["details"] = metaErr.Payload
	case errors.As(err, &jaErr):
		status = http.StatusBadGateway
		body["details"] = jaErr.Payload
	}
	if status >= 500 {
		s.log.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("rid", middleware.GetReqID(r.Context())),
			slog.String("err", err.Error()),
		)
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, dest any) error {
	defer io.Copy(io.Discard, r.Body)
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dest); err != nil {
		return &util.ValidationError{Fields: []string{"body"}, Reason: "invalid JSON: " + err.Error()}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}
