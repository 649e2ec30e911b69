// Package server exposes the assistant over HTTP.
//
// Endpoints (all bearer-authenticated except /healthz):
//
//	POST /api/chat            natural-language query → command result or reply
//	POST /api/documents       upload a document for background analysis
//	GET  /api/documents/{id}  poll an analysis job
//	GET  /api/audit           recent audit log entries
//
// Every chat query writes exactly one audit entry, whatever the outcome, and
// carries a trace ID through the logs and into failure notifications.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ontime-erp/assistant/common/trace"
	"github.com/ontime-erp/assistant/internal/assistant/audit"
	"github.com/ontime-erp/assistant/internal/assistant/executor"
	"github.com/ontime-erp/assistant/internal/assistant/extract"
	"github.com/ontime-erp/assistant/internal/assistant/intent"
	"github.com/ontime-erp/assistant/internal/assistant/knowledge"
	"github.com/ontime-erp/assistant/internal/assistant/llm"
	"github.com/ontime-erp/assistant/internal/assistant/store"
)

const maxUploadSize = 20 << 20 // 20MB

// Classifier turns query text into an intent.
type Classifier interface {
	Classify(query string) intent.Intent
}

// CommandRunner executes record commands and navigation.
type CommandRunner interface {
	Execute(ctx context.Context, user string, in intent.Intent) executor.Result
}

// Completer generates model output.  Satisfied by *llm.Registry.
type Completer interface {
	Complete(ctx context.Context, provider string, messages []llm.Message) (string, error)
}

// Limiter gates the model path per user.
type Limiter interface {
	Allow(user string) bool
}

// Store is the persistence surface the handlers need.
type Store interface {
	WriteAudit(ctx context.Context, e store.AuditEntry) error
	RecentAudit(ctx context.Context, limit int) ([]store.AuditEntry, error)
	CreateJob(ctx context.Context, documentName, content, submittedBy string) (string, error)
	GetJob(ctx context.Context, id string) (*store.Job, error)
	HasPermission(ctx context.Context, user, recordType, action string) (bool, error)
}

// auditLogType is the capability record type gating the audit endpoint.
const auditLogType = "AuditLog"

// Deps wires the handlers.
type Deps struct {
	Classifier Classifier
	Executor   CommandRunner
	Completer  Completer
	Limiter    Limiter
	Store      Store
	Notifier   audit.Notifier
	// Roles maps users to their application roles for prompt adornment.
	Roles  map[string][]string
	Tokens map[string]string
	Logger *slog.Logger
}

// NewHandler builds the HTTP routing tree.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = audit.Noop{}
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Tokens))
		r.Post("/api/chat", handleChat(deps))
		r.Post("/api/documents", handleUploadDocument(deps))
		r.Get("/api/documents/{id}", handleGetDocument(deps))
		r.Get("/api/audit", handleAudit(deps))
	})
	return r
}

type chatRequest struct {
	Query    string `json:"query"`
	Provider string `json:"provider,omitempty"`
}

type chatResponse struct {
	TraceID  string          `json:"trace_id"`
	Kind     intent.Kind     `json:"kind"`
	Language intent.Language `json:"language"`
	Result   executor.Result `json:"result"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		traceID := trace.GenerateID()
		ctx := trace.WithTraceID(r.Context(), traceID)
		user := actingUser(ctx)
		log := deps.Logger.With("trace_id", traceID, "user", user)

		in := deps.Classifier.Classify(req.Query)
		log.Info("query classified", "kind", in.Kind, "target", in.TargetType)

		var result executor.Result
		if in.Kind.IsRecordCommand() || in.Kind == intent.KindNavigate {
			result = deps.Executor.Execute(ctx, user, in)
		} else {
			result = completeViaModel(ctx, deps, user, req.Provider, in)
		}

		entry := store.AuditEntry{
			TraceID:    traceID,
			User:       user,
			IntentKind: string(in.Kind),
			Query:      req.Query,
			Response:   result.Message,
		}
		if err := deps.Store.WriteAudit(ctx, entry); err != nil {
			log.Error("write audit entry", "error", err)
		}

		if result.Kind == executor.ResultError {
			deps.Notifier.Notify(ctx, audit.Event{
				Kind:    audit.KindCommandFailed,
				Actor:   user,
				Target:  in.TargetType,
				Message: result.Message,
				TraceID: traceID,
			})
		}

		writeJSON(w, http.StatusOK, chatResponse{
			TraceID:  traceID,
			Kind:     in.Kind,
			Language: in.Language,
			Result:   result,
		})
	}
}

// completeViaModel serves the intents that need the language model: the
// knowledge kinds and the chat fallback.
func completeViaModel(ctx context.Context, deps Deps, user, provider string, in intent.Intent) executor.Result {
	if deps.Limiter != nil && !deps.Limiter.Allow(user) {
		return localizedError(in.Language,
			"You are sending requests too quickly. Please wait a moment and try again.",
			"أنت ترسل طلبات بسرعة كبيرة. يرجى الانتظار قليلاً والمحاولة مجدداً.")
	}

	text, _ := in.Parameters["text"].(string)
	roles := deps.Roles[user]

	var messages []llm.Message
	switch in.Kind {
	case intent.KindExplain:
		messages = knowledge.ExplainMessages(text, roles)
	case intent.KindSteps:
		messages = knowledge.StepsMessages(text, roles)
	case intent.KindGenerateScript:
		messages = knowledge.ScriptMessages(text)
	default:
		messages = knowledge.ChatMessages(text, roles)
	}

	reply, err := deps.Completer.Complete(ctx, provider, messages)
	if err != nil {
		deps.Logger.Error("model call failed", "kind", in.Kind, "error", err)
		if errors.Is(err, llm.ErrRateLimit) {
			return localizedError(in.Language,
				"The assistant is temporarily rate-limited by the model provider. Please try again shortly.",
				"المساعد مقيد مؤقتاً من مزود النموذج. يرجى المحاولة بعد قليل.")
		}
		if errors.Is(err, llm.ErrUnknownProvider) {
			return localizedError(in.Language,
				"The requested model provider is not configured.",
				"مزود النموذج المطلوب غير مهيأ.")
		}
		return localizedError(in.Language,
			"The assistant could not reach the language model. Please try again.",
			"تعذر الوصول إلى نموذج اللغة. يرجى المحاولة مجدداً.")
	}

	return executor.Result{Kind: executor.ResultSuccess, Message: reply}
}

func localizedError(lang intent.Language, en, ar string) executor.Result {
	msg := en
	if lang == intent.LangArabic {
		msg = ar
	}
	return executor.Result{Kind: executor.ResultError, Message: msg}
}

type uploadResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func handleUploadDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		defer r.Body.Close()

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "multipart field %q is required: %v", "file", err)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "read upload: %v", err)
			return
		}

		text, err := extract.Text(r.Context(), header.Filename, data)
		if err != nil {
			switch {
			case errors.Is(err, extract.ErrUnsupportedFormat):
				httpError(w, http.StatusUnsupportedMediaType, "invalid_request_error", "unsupported document format")
			case errors.Is(err, extract.ErrEmptyDocument):
				httpError(w, http.StatusBadRequest, "invalid_request_error", "document contains no extractable text")
			default:
				deps.Logger.Error("document extraction failed", "file", header.Filename, "error", err)
				httpError(w, http.StatusUnprocessableEntity, "extraction_error", "could not extract text from document")
			}
			return
		}

		user := actingUser(r.Context())
		jobID, err := deps.Store.CreateJob(r.Context(), header.Filename, text, user)
		if err != nil {
			deps.Logger.Error("enqueue analysis job", "file", header.Filename, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "could not queue document for analysis")
			return
		}

		deps.Logger.Info("analysis job queued", "job_id", jobID, "file", header.Filename, "user", user)
		writeJSON(w, http.StatusAccepted, uploadResponse{JobID: jobID, Status: store.JobPending})
	}
}

func handleGetDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := deps.Store.GetJob(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "no such analysis job")
			return
		}
		if err != nil {
			deps.Logger.Error("load analysis job", "job_id", id, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "could not load analysis job")
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func handleAudit(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := actingUser(r.Context())
		allowed, err := deps.Store.HasPermission(r.Context(), user, auditLogType, "read")
		if err != nil {
			deps.Logger.Error("audit capability check", "user", user, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "could not check permissions")
			return
		}
		if !allowed {
			httpError(w, http.StatusForbidden, "permission_error", "you are not permitted to read the audit log")
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a positive integer")
				return
			}
			limit = n
		}
		entries, err := deps.Store.RecentAudit(r.Context(), limit)
		if err != nil {
			deps.Logger.Error("load audit log", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "could not load audit log")
			return
		}
		if entries == nil {
			entries = []store.AuditEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
