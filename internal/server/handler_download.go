package server

import (
	"net/http"
)

func (s *Server) downloadEntry(w http.ResponseWriter, r *http.Request) {
	k := s.getCacheKeyWithPrefix(cacheKeyPrefixDownload, r.URL.EscapedPath())
	if dlURL, ok := s.getFromCache(r.Context(), k); ok {
		http.Redirect(w, r, dlURL.(string), http.StatusFound)
		return
	}

	e, ok := s.findEntry(w, r)
	if !ok {
		return
	}
	s.setInCache(r.Context(), k, e.DownloadURL)
	http.Redirect(w, r, e.DownloadURL, http.StatusFound)
}
