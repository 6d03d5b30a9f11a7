package submission

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tunequeue/tunequeue/internal/api"
	"github.com/tunequeue/tunequeue/internal/queue"
	"github.com/tunequeue/tunequeue/internal/quota"
	"github.com/tunequeue/tunequeue/internal/worker"
)

// QueueFullRetryAfter is the Retry-After hint sent with QUEUE_FULL.
const QueueFullRetryAfter = 30 * time.Second

// PoolStatus reports worker activity for the queue endpoint.
type PoolStatus interface {
	States() []worker.State
	InFlight() []queue.Job
}

type SubmitRequest struct {
	UserID   string `json:"user_id" validate:"required,max=128"`
	Resource string `json:"resource" validate:"required,max=2048"`
	ReplyTo  string `json:"reply_to" validate:"max=256"`
}

type SubmitResponse struct {
	JobID    uuid.UUID `json:"job_id"`
	Position int       `json:"position"`
}

type QueueStatus struct {
	Length   int            `json:"length"`
	Capacity int            `json:"capacity"`
	Closed   bool           `json:"closed"`
	Workers  []worker.State `json:"workers"`
	InFlight []queue.Job    `json:"in_flight"`
}

type Handler struct {
	svc      *Service
	pool     PoolStatus
	validate *validator.Validate
}

// NewHandler creates the submission handlers. pool may be nil.
func NewHandler(svc *Service, pool PoolStatus) *Handler {
	return &Handler{
		svc:      svc,
		pool:     pool,
		validate: validator.New(),
	}
}

// Submit handles POST /downloads.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	receipt, err := h.svc.Submit(r.Context(), SourceHTTP, Request{
		UserID:   req.UserID,
		Resource: req.Resource,
		ReplyTo:  req.ReplyTo,
	})
	if err != nil {
		h.handleSubmitError(w, err)
		return
	}

	api.JSON(w, http.StatusAccepted, SubmitResponse{JobID: receipt.Job.ID, Position: receipt.Position})
}

func (h *Handler) handleSubmitError(w http.ResponseWriter, err error) {
	var limitErr *quota.LimitExceededError
	switch {
	case errors.Is(err, ErrThrottled):
		w.WriteHeader(http.StatusTooManyRequests)
	case errors.As(err, &limitErr):
		if limitErr.Current < 0 {
			api.HandleError(w, api.ErrQuotaDown)
			return
		}
		api.HandleError(w, api.NewDailyLimitError(limitErr.Current, limitErr.Limit, seconds(h.svc.RetryAfter())))
	case errors.Is(err, ErrQueueFull):
		api.HandleError(w, api.NewQueueFullError(seconds(QueueFullRetryAfter)))
	case errors.Is(err, ErrShuttingDown):
		api.HandleError(w, api.ErrShuttingDown)
	case errors.Is(err, ErrInvalid):
		api.HandleError(w, api.NewValidationError(err.Error()))
	default:
		slog.Error("submitting download", "error", err)
		api.HandleError(w, api.ErrInternalServer)
	}
}

// GetQuota handles GET /users/{userID}/quota.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	gate := h.svc.Gate()
	status, err := gate.Service().Status(r.Context(), userID, gate.Limit())
	if err != nil {
		slog.Error("reading quota status", "error", err, "user_id", userID)
		if errors.Is(err, quota.ErrStorage) {
			api.HandleError(w, api.ErrQuotaDown)
			return
		}
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, status)
}

// QueueStatus handles GET /queue.
func (h *Handler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	q := h.svc.Queue()
	status := QueueStatus{
		Length:   q.Len(),
		Capacity: q.Cap(),
		Closed:   q.Closed(),
		Workers:  []worker.State{},
		InFlight: []queue.Job{},
	}
	if h.pool != nil {
		status.Workers = h.pool.States()
		status.InFlight = h.pool.InFlight()
	}
	api.JSON(w, http.StatusOK, status)
}

// seconds rounds d up to whole seconds, at least one.
func seconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
