// Package api serves stored scan sessions over HTTP: JSON summaries and
// points, a 3D chart page, ASC downloads and the database admin routes.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/echomap/internal/httputil"
	"github.com/banshee-data/echomap/internal/security"
	"github.com/banshee-data/echomap/internal/sonar"
	"github.com/banshee-data/echomap/internal/sonardb"
	"github.com/banshee-data/echomap/internal/version"
	"github.com/banshee-data/echomap/internal/visualiser"
)

// DefaultListLimit caps /api/sessions when no limit is given.
const DefaultListLimit = 50

// Store is the read side of the session database.
type Store interface {
	ListSessions(ctx context.Context, limit int) ([]sonardb.SessionSummary, error)
	GetSession(ctx context.Context, id string) (sonardb.SessionSummary, error)
	LoadCloud(ctx context.Context, id string) (sonar.PointCloud, error)
}

// adminAttacher is implemented by stores that expose debug routes.
type adminAttacher interface {
	AttachAdminRoutes(mux *http.ServeMux) error
}

type Server struct {
	store Store
}

func NewServer(store Store) *Server {
	return &Server{store: store}
}

// ServeMux registers the API routes, plus the store's admin routes when it
// has any.
func (s *Server) ServeMux() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/version", s.showVersion)
	mux.HandleFunc("GET /api/sessions", s.listSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.showSession)
	mux.HandleFunc("GET /api/sessions/{id}/points", s.listPoints)
	mux.HandleFunc("GET /api/sessions/{id}/chart", s.showChart)
	mux.HandleFunc("GET /api/sessions/{id}/asc", s.downloadASC)

	if a, ok := s.store.(adminAttacher); ok {
		if err := a.AttachAdminRoutes(mux); err != nil {
			return nil, fmt.Errorf("attach admin routes: %w", err)
		}
	}
	return mux, nil
}

// Handler is ServeMux wrapped in request logging.
func (s *Server) Handler() (http.Handler, error) {
	mux, err := s.ServeMux()
	if err != nil {
		return nil, err
	}
	return httputil.LoggingMiddleware(mux), nil
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, version.Current())
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", DefaultListLimit, 1)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	sessions, err := s.store.ListSessions(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	httputil.WriteJSONOK(w, summary)
}

func (s *Server) listPoints(w http.ResponseWriter, r *http.Request) {
	cloud, ok := s.loadCloud(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, cloud.Points)
}

func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	cloud, ok := s.loadCloud(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := visualiser.RenderHTML(w, cloud, r.URL.Query().Get("title")); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to render chart: %v", err))
	}
}

func (s *Server) downloadASC(w http.ResponseWriter, r *http.Request) {
	cloud, ok := s.loadCloud(w, r)
	if !ok {
		return
	}
	name := security.SanitizeFilename(cloud.SessionID) + ".asc"
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	if err := visualiser.WriteASC(w, cloud); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to write points: %v", err))
	}
}

// loadCloud writes the error response itself and reports whether the
// handler should continue.
func (s *Server) loadCloud(w http.ResponseWriter, r *http.Request) (sonar.PointCloud, bool) {
	cloud, err := s.store.LoadCloud(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLookupError(w, err)
		return cloud, false
	}
	if len(cloud.Points) == 0 {
		httputil.NotFound(w, sonar.ErrNoData.Error())
		return cloud, false
	}
	return cloud, true
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, sonardb.ErrNotFound) {
		httputil.NotFound(w, "session not found")
		return
	}
	httputil.InternalServerError(w, fmt.Sprintf("Failed to load session: %v", err))
}
