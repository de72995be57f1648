package entryhandlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace/noop"

	entryservice "github.com/Black-And-White-Club/judgeboard/app/modules/entry/application"
	entrydomain "github.com/Black-And-White-Club/judgeboard/app/modules/entry/domain"
	entrydb "github.com/Black-And-White-Club/judgeboard/app/modules/entry/infrastructure/repositories"
	"github.com/Black-And-White-Club/judgeboard/pkg/apierror"
)

func newRouter(svc entryservice.Service) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewEntryHandlers(svc, logger, noop.NewTracerProvider().Tracer("test"))
	r := chi.NewRouter()
	r.Put("/api/entries/{entryID}/position", h.HandleReposition)
	r.Get("/api/entries/{entryID}", h.HandleGetEntry)
	return r
}

func TestHandleReposition(t *testing.T) {
	entryID := uuid.New()
	two := 2

	tests := []struct {
		name         string
		body         string
		setupService func(*FakeService)
		wantStatus   int
		wantCode     string
		wantCalled   bool
	}{
		{
			name: "success",
			body: `{"targetPosition": 2}`,
			setupService: func(s *FakeService) {
				s.RepositionFunc = func(ctx context.Context, id uuid.UUID, target int) (*entryservice.RepositionResult, error) {
					if target != 2 {
						return nil, fmt.Errorf("unexpected target %d", target)
					}
					return &entryservice.RepositionResult{
						Entry: &entrydb.Entry{ID: id, Position: &two},
						Changes: []entrydomain.Step{
							{EntryID: id.String(), To: entrydomain.TempPosition},
							{EntryID: "other", To: 3},
							{EntryID: id.String(), To: 2},
						},
					}, nil
				}
			},
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "fractional target rejected",
			body:       `{"targetPosition": 2.5}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   apierror.CodeValidationFailed,
		},
		{
			name:       "negative target rejected",
			body:       `{"targetPosition": -1}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   apierror.CodeValidationFailed,
		},
		{
			name:       "missing target rejected",
			body:       `{}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   apierror.CodeValidationFailed,
		},
		{
			name: "not found",
			body: `{"targetPosition": 1}`,
			setupService: func(s *FakeService) {
				s.RepositionFunc = func(ctx context.Context, id uuid.UUID, target int) (*entryservice.RepositionResult, error) {
					return nil, entrydb.ErrNotFound
				}
			},
			wantStatus: http.StatusNotFound,
			wantCode:   apierror.CodeNotFound,
			wantCalled: true,
		},
		{
			name: "conflict",
			body: `{"targetPosition": 1}`,
			setupService: func(s *FakeService) {
				s.RepositionFunc = func(ctx context.Context, id uuid.UUID, target int) (*entryservice.RepositionResult, error) {
					return nil, fmt.Errorf("Reposition: %w", entrydomain.ErrPositionConflict)
				}
			},
			wantStatus: http.StatusConflict,
			wantCode:   apierror.CodePositionConflict,
			wantCalled: true,
		},
		{
			name: "infrastructure failure",
			body: `{"targetPosition": 1}`,
			setupService: func(s *FakeService) {
				s.RepositionFunc = func(ctx context.Context, id uuid.UUID, target int) (*entryservice.RepositionResult, error) {
					return nil, errors.New("db gone")
				}
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   apierror.CodeInternal,
			wantCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &FakeService{}
			if tt.setupService != nil {
				tt.setupService(svc)
			}

			req := httptest.NewRequest(http.MethodPut, "/api/entries/"+entryID.String()+"/position", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			newRouter(svc).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			if called := len(svc.Trace()) > 0; called != tt.wantCalled {
				t.Fatalf("service called = %v, want %v", called, tt.wantCalled)
			}

			if tt.wantCode != "" {
				var body apierror.Body
				if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
					t.Fatalf("decode error body: %v", err)
				}
				if body.Error.Code != tt.wantCode {
					t.Fatalf("expected code %s, got %s", tt.wantCode, body.Error.Code)
				}
				return
			}

			var out RepositionResponse
			if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if out.Entry.Position == nil || *out.Entry.Position != 2 {
				t.Fatalf("unexpected entry: %+v", out.Entry)
			}
			if len(out.Changes) != 2 {
				t.Fatalf("temporary step should be hidden, got %+v", out.Changes)
			}
		})
	}
}

func TestHandleGetEntry(t *testing.T) {
	entryID := uuid.New()
	svc := &FakeService{
		GetEntryFunc: func(ctx context.Context, id uuid.UUID) (*entrydb.Entry, error) {
			return &entrydb.Entry{ID: id, Name: "Float 12"}, nil
		},
	}

	rr := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/entries/"+entryID.String(), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/entries/not-a-uuid", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for malformed id, got %d", rr.Code)
	}
}
