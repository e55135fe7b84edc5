package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/narstation/narstation/internal/generator"
	"github.com/narstation/narstation/internal/render"
	"github.com/narstation/narstation/pkg/listing"
)

var (
	errNotGenerated = errors.New("listing has not been generated yet")
	errBusy         = errors.New("generation already in progress")
)

// UpdateResponse is returned by the update endpoint.
type UpdateResponse struct {
	OK       bool     `json:"ok"`
	Entries  int      `json:"entries"`
	Uploaded []string `json:"uploaded"`
}

// Regenerate runs a generation unless one is already running.
func (s *Server) Regenerate(ctx context.Context, trigger string) (*generator.Result, error) {
	if !s.genSemaphore.TryAcquire(1) {
		return nil, errBusy
	}
	defer s.genSemaphore.Release(1)

	s.log.WithField("trigger", trigger).Info("generating listing...")
	res, err := s.generator.Generate(ctx)
	if err != nil {
		return nil, err
	}
	s.invalidateListingCache()
	return res, nil
}

func (s *Server) lastPage(w http.ResponseWriter, r *http.Request) (*generator.Result, bool) {
	res := s.generator.Last()
	if res == nil {
		s.writeJSONError(w, r, http.StatusServiceUnavailable, errNotGenerated)
		return nil, false
	}
	return res, true
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lastPage(w, r)
	if !ok {
		return
	}
	s.writeBody(w, "text/html; charset=utf-8", res.Files[render.IndexFileName])
}

func (s *Server) feedHandler(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lastPage(w, r)
	if !ok {
		return
	}
	s.writeBody(w, "application/rss+xml; charset=utf-8", res.Files[render.FeedFileName])
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lastPage(w, r)
	if !ok {
		return
	}
	s.writeCachedJSON(w, r, s.getCacheKeyFromRequest(r), res.Page)
}

func (s *Server) findEntry(w http.ResponseWriter, r *http.Request) (*listing.Entry, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		s.writeJSONError(w, r, http.StatusBadRequest, fmt.Errorf("entry id is missing"))
		return nil, false
	}
	res, ok := s.lastPage(w, r)
	if !ok {
		return nil, false
	}
	e := res.Page.Find(id)
	if e == nil {
		s.writeJSONError(w, r, http.StatusNotFound, fmt.Errorf("entry %s not found", id))
		return nil, false
	}
	return e, true
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	e, ok := s.findEntry(w, r)
	if !ok {
		return
	}
	s.writeCachedJSON(w, r, s.getCacheKeyFromRequest(r), e)
}

func (s *Server) updateListing(w http.ResponseWriter, r *http.Request) {
	reqLogger := s.requestLogger(r)
	reqLogger.Warn("updating listing...")

	res, err := s.Regenerate(r.Context(), "api")
	if errors.Is(err, errBusy) {
		s.writeJSONError(w, r, http.StatusTooManyRequests, err)
		return
	}
	if err != nil {
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "could not update listing")
		return
	}

	reqLogger.Infof("listing updated with %d entries", len(res.Page.Entries))
	s.writeJSON(w, &UpdateResponse{OK: true, Entries: len(res.Page.Entries), Uploaded: res.Uploaded})
}
