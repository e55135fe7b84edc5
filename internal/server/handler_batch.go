package server

import (
	"encoding/json"
	"net/http"

	"github.com/narstation/narstation/pkg/listing"
)

func (s *Server) batchGetEntries(w http.ResponseWriter, r *http.Request) {
	// limit request body to 1MB
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)

	batchRequest := new(listing.BatchRequest)
	if err := json.NewDecoder(r.Body).Decode(batchRequest); err != nil {
		s.writeJSONError(w, r, http.StatusBadRequest, err, "could not decode request")
		return
	}
	if err := batchRequest.Validate(); err != nil {
		s.writeJSONError(w, r, http.StatusBadRequest, err)
		return
	}

	batchRequestCacheKey := s.getCacheKeyWithPrefix(cacheKeyPrefixBatchRequest, batchRequest.Hash())
	if cachedBatchResponse, found := s.getFromCache(r.Context(), batchRequestCacheKey); found {
		s.log.Debugf("found cached batch response for %s", batchRequestCacheKey)
		s.writeBody(w, contentTypeJSON, cachedBatchResponse.([]byte))
		return
	}

	res, ok := s.lastPage(w, r)
	if !ok {
		return
	}
	batchResponse, err := listing.NewBatchResponse(res.Page, batchRequest)
	if err != nil {
		s.writeJSONError(w, r, http.StatusNotFound, err)
		return
	}

	s.writeCachedJSON(w, r, batchRequestCacheKey, batchResponse)
}
