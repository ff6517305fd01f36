package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"transit-lookup/internal/bookmarks"
	"transit-lookup/internal/schedule"
	"transit-lookup/internal/search"
)

func param(r *http.Request, name string) string {
	return strings.TrimSpace(httprouter.ParamsFromContext(r.Context()).ByName(name))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// searchRoutes answers GET /routes/search?q=&filter=. filter narrows the
// results by route number, destination or area.
func (s *Server) searchRoutes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	results, err := s.catalog.Search(r.Context(), q.Get("q"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if f := q.Get("filter"); f != "" {
		results = search.Filter(results, f)
	}
	writeJSON(w, r, http.StatusOK, results)
}

func (s *Server) routeDetails(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tripID := strings.TrimSpace(q.Get("trip_id"))
	if tripID == "" {
		writeError(w, r, http.StatusBadRequest, "trip_id is required")
		return
	}
	details, err := s.catalog.RouteDetails(r.Context(), tripID, q.Get("from"), q.Get("to"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, details)
}

func (s *Server) journey(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	options, err := s.catalog.PlanJourney(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, options)
}

func (s *Server) nextBus(w http.ResponseWriter, r *http.Request) {
	info, err := s.catalog.NextBus(r.Context(), param(r, "route_number"), s.clock.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, info)
}

func (s *Server) putSchedule(w http.ResponseWriter, r *http.Request) {
	var m schedule.Meta
	if !decodeJSON(w, r, &m) {
		return
	}
	route := param(r, "route_number")
	if err := s.catalog.SaveScheduleMeta(r.Context(), route, m); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, m)
}

func (s *Server) listFavorites(w http.ResponseWriter, r *http.Request) {
	list, err := s.bookmarks.Favorites(r.Context(), param(r, "device"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, bookmarks.Filter(list, r.URL.Query().Get("q")))
}

// addFavorite takes the route number from the path; the optional body
// carries the headsign and ids to show with it.
func (s *Server) addFavorite(w http.ResponseWriter, r *http.Request) {
	var e bookmarks.Entry
	if r.ContentLength != 0 && !decodeJSON(w, r, &e) {
		return
	}
	e.RouteNumber = param(r, "route_number")
	list, err := s.bookmarks.AddFavorite(r.Context(), param(r, "device"), e)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) removeFavorite(w http.ResponseWriter, r *http.Request) {
	list, err := s.bookmarks.RemoveFavorite(r.Context(), param(r, "device"), param(r, "route_number"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) listRecent(w http.ResponseWriter, r *http.Request) {
	list, err := s.bookmarks.Recent(r.Context(), param(r, "device"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) recordRecent(w http.ResponseWriter, r *http.Request) {
	var e bookmarks.Entry
	if !decodeJSON(w, r, &e) {
		return
	}
	list, err := s.bookmarks.RecordRecent(r.Context(), param(r, "device"), e)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) clearRecent(w http.ResponseWriter, r *http.Request) {
	if err := s.bookmarks.ClearRecent(r.Context(), param(r, "device")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
