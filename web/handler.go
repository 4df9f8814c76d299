// Package web serves the daybook JSON API and a read-only board page.
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/amonks/daybook/board"
	"github.com/amonks/daybook/docstore"
	"github.com/amonks/daybook/internal/logging"
	"github.com/amonks/daybook/todo"
	"github.com/amonks/daybook/tracker"
)

// Options configures the handler.
type Options struct {
	// Window is used when a board request names none.
	Window board.WindowKind

	Logger *zerolog.Logger
}

// Handler serves the daybook API.
type Handler struct {
	svc       *tracker.Service
	window    board.WindowKind
	log       zerolog.Logger
	router    *mux.Router
	templates *templateWrapper
}

// NewHandler creates a handler backed by svc.
func NewHandler(svc *tracker.Service, opts Options) *Handler {
	if opts.Window == "" {
		opts.Window = board.CurrentWeek
	}
	h := &Handler{
		svc:       svc,
		window:    opts.Window,
		log:       logging.OrNop(opts.Logger).With().Str("component", "web").Logger(),
		templates: newTemplateWrapper(),
	}

	router := mux.NewRouter()
	router.Use(h.logRequests)
	router.HandleFunc("/", h.handlePage).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/board", h.handleBoard).Methods(http.MethodGet)
	api.HandleFunc("/running", h.handleRunning).Methods(http.MethodGet)
	api.HandleFunc("/todos", h.handleCreateTodo).Methods(http.MethodPost)
	api.HandleFunc("/todos/{id}", h.handleGetTodo).Methods(http.MethodGet)
	api.HandleFunc("/todos/{id}", h.handleUpdateTodo).Methods(http.MethodPatch)
	api.HandleFunc("/todos/{id}/complete", h.handleComplete).Methods(http.MethodPost)
	api.HandleFunc("/todos/{id}/track", h.handleTrack).Methods(http.MethodPost)
	h.router = router
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

type errorResponse struct {
	Error     string        `json:"error"`
	Kind      docstore.Kind `json:"kind,omitempty"`
	Retryable bool          `json:"retryable"`
}

type boardResponse struct {
	Board *board.Board   `json:"board"`
	Stale bool           `json:"stale"`
	Error *errorResponse `json:"error,omitempty"`
}

type todoResponse struct {
	Todo todo.Todo `json:"todo"`
}

type todosResponse struct {
	Todos []todo.Todo `json:"todos"`
}

type completionResponse struct {
	tracker.Completion
	SuccessorError *errorResponse `json:"successorError,omitempty"`
}

// patchRequest is the body of PATCH /api/todos/{id}. Absent fields are
// left alone.
type patchRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Context     *string   `json:"context"`
	Due         *string   `json:"due"`
	Tags        *[]string `json:"tags"`
	Repeat      *int      `json:"repeat"`
	Link        *string   `json:"link"`
	ParentID    *string   `json:"parentId"`
	ClearRepeat bool      `json:"clearRepeat"`
	ClearLink   bool      `json:"clearLink"`
	ClearParent bool      `json:"clearParent"`
}

func (p patchRequest) patch(loc *time.Location) (todo.Patch, error) {
	patch := todo.Patch{
		Title:       p.Title,
		Description: p.Description,
		Context:     p.Context,
		Tags:        p.Tags,
		Repeat:      p.Repeat,
		Link:        p.Link,
		ParentID:    p.ParentID,
		ClearRepeat: p.ClearRepeat,
		ClearLink:   p.ClearLink,
		ClearParent: p.ClearParent,
	}
	if p.Due != nil {
		due, err := todo.ParseDue(*p.Due, loc)
		if err != nil {
			return todo.Patch{}, err
		}
		patch.Due = &due
	}
	return patch, nil
}

// boardRequest reads a board request from the query string.
func (h *Handler) boardRequest(r *http.Request) (board.Request, error) {
	query := r.URL.Query()
	kind := strings.TrimSpace(query.Get("window"))
	if kind == "" {
		kind = string(h.window)
	}
	window, err := board.ParseWindow(kind, query.Get("from"), query.Get("to"))
	if err != nil {
		return board.Request{}, err
	}
	status, err := board.ParseStatus(query.Get("status"))
	if err != nil {
		return board.Request{}, err
	}
	return h.svc.ResolveRequest(board.Request{
		Window: window,
		Filters: board.Filters{
			Contexts: nonEmpty(query["context"]),
			Status:   status,
			Tags:     nonEmpty(query["tag"]),
		},
	})
}

func nonEmpty(values []string) []string {
	var out []string
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}

func (h *Handler) handleBoard(w http.ResponseWriter, r *http.Request) {
	req, err := h.boardRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	result := h.svc.Board(r.Context(), req)
	if result.Board == nil {
		h.respondStoreError(w, result.Err)
		return
	}
	response := boardResponse{Board: result.Board, Stale: result.Stale}
	if result.Err != nil {
		response.Error = newErrorResponse(result.Err)
	}
	respondJSON(w, http.StatusOK, response)
}

func (h *Handler) handleRunning(w http.ResponseWriter, r *http.Request) {
	running, err := h.svc.Running(r.Context())
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	if running == nil {
		running = []todo.Todo{}
	}
	respondJSON(w, http.StatusOK, todosResponse{Todos: running})
}

func (h *Handler) handleCreateTodo(w http.ResponseWriter, r *http.Request) {
	var in tracker.NewTodo
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid request payload"))
		return
	}
	created, err := h.svc.CreateTodo(r.Context(), in)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, todoResponse{Todo: created})
}

// resolve expands the {id} route variable, which may be a unique prefix.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := h.svc.Resolve(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondStoreError(w, err)
		return "", false
	}
	return id, true
}

func (h *Handler) handleGetTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resolve(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, todoResponse{Todo: t})
}

func (h *Handler) handleUpdateTodo(w http.ResponseWriter, r *http.Request) {
	var body patchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid request payload"))
		return
	}
	patch, err := body.patch(h.svc.Location())
	if err != nil {
		h.respondStoreError(w, docstore.NewError(docstore.KindInvalidDocument, "update fields", "", err))
		return
	}
	id, ok := h.resolve(w, r)
	if !ok {
		return
	}
	updated, err := h.svc.UpdateFields(r.Context(), id, patch)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, todoResponse{Todo: updated})
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resolve(w, r)
	if !ok {
		return
	}
	completion, err := h.svc.ToggleCompleted(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	response := completionResponse{Completion: completion}
	if completion.SuccessorErr != nil {
		response.SuccessorError = newErrorResponse(completion.SuccessorErr)
	}
	respondJSON(w, http.StatusOK, response)
}

func (h *Handler) handleTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resolve(w, r)
	if !ok {
		return
	}
	tracking, err := h.svc.ToggleTimeTracking(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tracking)
}

func newErrorResponse(err error) *errorResponse {
	return &errorResponse{
		Error:     err.Error(),
		Kind:      docstore.KindOf(err),
		Retryable: docstore.IsRetryable(err),
	}
}

// statusFor maps an error to the HTTP status reported for it.
func statusFor(err error) int {
	if errors.Is(err, todo.ErrAmbiguousTodoIDPrefix) ||
		errors.Is(err, board.ErrInvalidWindow) ||
		errors.Is(err, board.ErrInvalidStatus) {
		return http.StatusBadRequest
	}
	switch docstore.KindOf(err) {
	case docstore.KindNotFound:
		return http.StatusNotFound
	case docstore.KindConflict:
		return http.StatusConflict
	case docstore.KindInvalidDocument:
		return http.StatusUnprocessableEntity
	case docstore.KindNetwork:
		return http.StatusServiceUnavailable
	case docstore.KindQuotaExceeded:
		return http.StatusInsufficientStorage
	case docstore.KindPermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondStoreError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	respondJSON(w, status, newErrorResponse(err))
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, errorResponse{Error: err.Error()})
}
