package scorehandlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/Black-And-White-Club/judgeboard/app/identity"
	scoreservice "github.com/Black-And-White-Club/judgeboard/app/modules/score/application"
	scoredomain "github.com/Black-And-White-Club/judgeboard/app/modules/score/domain"
	"github.com/Black-And-White-Club/judgeboard/app/observability"
	"github.com/Black-And-White-Club/judgeboard/pkg/apierror"
	"github.com/Black-And-White-Club/judgeboard/pkg/jwt"
)

// ScoreHandlers serves the scoring endpoints.
type ScoreHandlers struct {
	service scoreservice.Service
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewScoreHandlers creates a new ScoreHandlers.
func NewScoreHandlers(service scoreservice.Service, logger *slog.Logger, tracer trace.Tracer) Handlers {
	return &ScoreHandlers{
		service: service,
		logger:  logger,
		tracer:  tracer,
	}
}

// SaveScoresRequest is the body of a save.
type SaveScoresRequest struct {
	Values scoredomain.Values `json:"values"`
}

// SaveScoresResponse returns the stored values and re-derived status.
type SaveScoresResponse struct {
	ScoreID string             `json:"scoreId"`
	EntryID string             `json:"entryId"`
	Status  scoredomain.Status `json:"status"`
	Total   int                `json:"total"`
	Values  scoredomain.Values `json:"values"`
	SavedAt string             `json:"savedAt"`
}

// EntryStatusResponse is one row of a listing.
type EntryStatusResponse struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Organization *string            `json:"organization"`
	Approved     bool               `json:"approved"`
	Position     *int               `json:"position"`
	Values       scoredomain.Values `json:"values"`
	Total        int                `json:"total"`
	Status       scoredomain.Status `json:"status"`
}

// ListingResponse is a judge's view of an event.
type ListingResponse struct {
	EventID    string                     `json:"eventId"`
	JudgeID    string                     `json:"judgeId"`
	Categories []scoredomain.Category     `json:"categories"`
	Entries    []EntryStatusResponse      `json:"entries"`
	Summary    map[scoredomain.Status]int `json:"summary"`
}

// HandleSaveScores handles PUT /api/events/{eventID}/entries/{entryID}/scores.
// The judge is the authenticated caller.
func (h *ScoreHandlers) HandleSaveScores(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ScoreHandlers.HandleSaveScores")
	defer span.End()

	caller, ok := identity.FromContext(ctx)
	if !ok || caller.JudgeID == "" {
		apierror.Write(w, http.StatusUnauthorized, apierror.CodeUnauthorized, "judge identity required")
		return
	}

	eventID, entryID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}
	if !allowedEvent(caller, eventID) {
		apierror.Write(w, http.StatusForbidden, apierror.CodeForbidden, "token is not valid for this event")
		return
	}

	var body SaveScoresRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(&body); err != nil {
		apierror.Write(w, http.StatusUnprocessableEntity, apierror.CodeValidationFailed, decodeMessage(err))
		return
	}

	res, err := h.service.SaveScores(ctx, scoreservice.SaveScoresRequest{
		EventID: eventID,
		EntryID: entryID,
		JudgeID: caller.JudgeID,
		Values:  body.Values,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	apierror.WriteJSON(w, http.StatusOK, SaveScoresResponse{
		ScoreID: res.ScoreID.String(),
		EntryID: res.EntryID.String(),
		Status:  res.Status,
		Total:   res.Total,
		Values:  res.Values,
		SavedAt: res.SavedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// HandleListEntries handles GET /api/events/{eventID}/judges/{judgeID}/entries.
// Judges may only list their own scores; coordinators may list anyone's.
func (h *ScoreHandlers) HandleListEntries(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ScoreHandlers.HandleListEntries")
	defer span.End()

	w.Header().Set("Cache-Control", "no-store")

	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		apierror.Write(w, http.StatusNotFound, apierror.CodeNotFound, "unknown event id")
		return
	}
	judgeID := chi.URLParam(r, "judgeID")

	caller, _ := identity.FromContext(ctx)
	if caller.Role != jwt.RoleCoordinator && caller.JudgeID != judgeID {
		apierror.Write(w, http.StatusForbidden, apierror.CodeForbidden, "judges may only list their own scores")
		return
	}
	if !allowedEvent(caller, eventID) {
		apierror.Write(w, http.StatusForbidden, apierror.CodeForbidden, "token is not valid for this event")
		return
	}

	listing, err := h.service.ListEntriesWithStatus(ctx, eventID, judgeID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := ListingResponse{
		EventID:    listing.EventID.String(),
		JudgeID:    listing.JudgeID,
		Categories: listing.Categories,
		Entries:    make([]EntryStatusResponse, 0, len(listing.Entries)),
		Summary:    listing.Summary,
	}
	for _, row := range listing.Entries {
		out.Entries = append(out.Entries, EntryStatusResponse{
			ID:           row.Entry.ID.String(),
			Name:         row.Entry.Name,
			Organization: row.Entry.Organization,
			Approved:     row.Entry.Approved,
			Position:     row.Entry.Position,
			Values:       row.Values,
			Total:        row.Total,
			Status:       row.Status,
		})
	}
	apierror.WriteJSON(w, http.StatusOK, out)
}

func (h *ScoreHandlers) pathIDs(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		apierror.Write(w, http.StatusNotFound, apierror.CodeNotFound, "unknown event id")
		return uuid.Nil, uuid.Nil, false
	}
	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		apierror.Write(w, http.StatusNotFound, apierror.CodeNotFound, "unknown entry id")
		return uuid.Nil, uuid.Nil, false
	}
	return eventID, entryID, true
}

// allowedEvent reports whether an event-scoped token covers eventID.
func allowedEvent(caller identity.Identity, eventID uuid.UUID) bool {
	return caller.EventID == "" || caller.EventID == eventID.String()
}

func decodeMessage(err error) string {
	if errors.Is(err, scoredomain.ErrNonIntegerValue) {
		return err.Error()
	}
	return fmt.Sprintf("malformed body: %v", err)
}

func (h *ScoreHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *scoredomain.ValidationError
	switch {
	case errors.Is(err, scoreservice.ErrEntryNotFound):
		apierror.Write(w, http.StatusNotFound, apierror.CodeNotFound, err.Error())
	case errors.As(err, &verr):
		apierror.Write(w, http.StatusUnprocessableEntity, apierror.CodeValidationFailed, verr.Error())
	default:
		h.logger.ErrorContext(r.Context(), "Score request failed",
			observability.CorrelationAttr(r.Context()),
			slog.String("path", r.URL.Path),
			observability.ErrorAttr(err),
		)
		apierror.Write(w, http.StatusInternalServerError, apierror.CodeInternal, "internal error")
	}
}
