package entryhandlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	entryservice "github.com/Black-And-White-Club/judgeboard/app/modules/entry/application"
	entrydomain "github.com/Black-And-White-Club/judgeboard/app/modules/entry/domain"
	entrydb "github.com/Black-And-White-Club/judgeboard/app/modules/entry/infrastructure/repositories"
	"github.com/Black-And-White-Club/judgeboard/app/observability"
	"github.com/Black-And-White-Club/judgeboard/pkg/apierror"
)

// EntryHandlers serves the entry endpoints.
type EntryHandlers struct {
	service entryservice.Service
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewEntryHandlers creates a new EntryHandlers.
func NewEntryHandlers(service entryservice.Service, logger *slog.Logger, tracer trace.Tracer) Handlers {
	return &EntryHandlers{
		service: service,
		logger:  logger,
		tracer:  tracer,
	}
}

// EntryResponse is the wire form of an entry.
type EntryResponse struct {
	ID           string  `json:"id"`
	EventID      string  `json:"eventId"`
	Name         string  `json:"name"`
	Organization *string `json:"organization"`
	Approved     bool    `json:"approved"`
	Position     *int    `json:"position"`
}

// ChangeResponse is one entry's move within a reposition.
type ChangeResponse struct {
	EntryID string `json:"entryId"`
	From    *int   `json:"from"`
	To      int    `json:"to"`
}

// RepositionResponse is returned by a successful reposition.
type RepositionResponse struct {
	Entry   EntryResponse    `json:"entry"`
	Changes []ChangeResponse `json:"changes"`
}

type repositionRequest struct {
	TargetPosition *json.Number `json:"targetPosition"`
}

// HandleReposition handles PUT /api/entries/{entryID}/position.
func (h *EntryHandlers) HandleReposition(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "EntryHandlers.HandleReposition")
	defer span.End()

	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		apierror.Write(w, http.StatusNotFound, apierror.CodeNotFound, "unknown entry id")
		return
	}

	target, err := decodeTarget(w, r)
	if err != nil {
		apierror.Write(w, http.StatusUnprocessableEntity, apierror.CodeValidationFailed, err.Error())
		return
	}

	res, err := h.service.Reposition(ctx, entryID, target)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := RepositionResponse{Entry: toEntryResponse(res.Entry), Changes: []ChangeResponse{}}
	for _, step := range res.Changes {
		if step.To == entrydomain.TempPosition {
			continue
		}
		out.Changes = append(out.Changes, ChangeResponse{EntryID: step.EntryID, From: step.From, To: step.To})
	}
	apierror.WriteJSON(w, http.StatusOK, out)
}

// HandleGetEntry handles GET /api/entries/{entryID}.
func (h *EntryHandlers) HandleGetEntry(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "EntryHandlers.HandleGetEntry")
	defer span.End()

	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		apierror.Write(w, http.StatusNotFound, apierror.CodeNotFound, "unknown entry id")
		return
	}

	entry, err := h.service.GetEntry(ctx, entryID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, toEntryResponse(entry))
}

// decodeTarget requires targetPosition to be a JSON integer.
func decodeTarget(w http.ResponseWriter, r *http.Request) (int, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.UseNumber()
	var req repositionRequest
	if err := dec.Decode(&req); err != nil {
		return 0, fmt.Errorf("malformed body: %w", err)
	}
	if req.TargetPosition == nil {
		return 0, errors.New("targetPosition is required")
	}
	n, err := req.TargetPosition.Int64()
	if err != nil {
		return 0, fmt.Errorf("targetPosition must be an integer, got %s", req.TargetPosition.String())
	}
	if err := entrydomain.ValidateTarget(int(n)); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (h *EntryHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *entrydomain.ValidationError
	switch {
	case errors.Is(err, entrydb.ErrNotFound):
		apierror.Write(w, http.StatusNotFound, apierror.CodeNotFound, err.Error())
	case errors.As(err, &verr):
		apierror.Write(w, http.StatusUnprocessableEntity, apierror.CodeValidationFailed, verr.Error())
	case errors.Is(err, entrydomain.ErrPositionConflict), errors.Is(err, entrydomain.ErrInvariantViolation):
		apierror.Write(w, http.StatusConflict, apierror.CodePositionConflict, "position could not be assigned, retry")
	default:
		h.logger.ErrorContext(r.Context(), "Entry request failed",
			observability.CorrelationAttr(r.Context()),
			slog.String("path", r.URL.Path),
			observability.ErrorAttr(err),
		)
		apierror.Write(w, http.StatusInternalServerError, apierror.CodeInternal, "internal error")
	}
}

func toEntryResponse(e *entrydb.Entry) EntryResponse {
	return EntryResponse{
		ID:           e.ID.String(),
		EventID:      e.EventID.String(),
		Name:         e.Name,
		Organization: e.Organization,
		Approved:     e.Approved,
		Position:     e.Position,
	}
}
