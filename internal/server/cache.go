package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/narstation/narstation/internal/metrics"
	"github.com/patrickmn/go-cache"
)

type (
	cacheKeyPrefix string
	cacheKey       string
)

const (
	cacheKeyPrefixBatchRequest cacheKeyPrefix = "batch"
	cacheKeyPrefixRequest      cacheKeyPrefix = "request"
	cacheKeyPrefixDownload     cacheKeyPrefix = "download"
)

// listingCacheKeyPrefixes hold everything derived from the current listing.
var listingCacheKeyPrefixes = []cacheKeyPrefix{
	cacheKeyPrefixBatchRequest,
	cacheKeyPrefixRequest,
	cacheKeyPrefixDownload,
}

func (s *Server) getCacheKeyFromRequest(r *http.Request) cacheKey {
	return cacheKey(fmt.Sprintf("%s/%s:%s", cacheKeyPrefixRequest, r.Method, r.URL.EscapedPath()))
}

func (s *Server) getCacheKeyWithPrefix(p cacheKeyPrefix, key string) cacheKey {
	return cacheKey(fmt.Sprintf("%s/%s", p, key))
}

func (s *Server) getFromCache(ctx context.Context, k cacheKey) (any, bool) {
	if s.config.DisableCache {
		return nil, false
	}
	val, ok := s.cache.Get(string(k))
	if ok {
		metrics.RecordCacheHit(ctx, string(k))
	}
	return val, ok
}

func (s *Server) setInCache(ctx context.Context, k cacheKey, v any) {
	if s.config.DisableCache {
		return
	}
	metrics.RecordCacheMiss(ctx, string(k))
	s.cache.Set(string(k), v, cache.DefaultExpiration)
}

// writeCachedJSON encodes v once, stores the body under k and writes it.
func (s *Server) writeCachedJSON(w http.ResponseWriter, r *http.Request, k cacheKey, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "could not encode response")
		return
	}
	body = append(body, '\n')
	s.setInCache(r.Context(), k, body)
	s.writeBody(w, contentTypeJSON, body)
}

func (s *Server) invalidateListingCache() {
	for k := range s.cache.Items() {
		for _, prefix := range listingCacheKeyPrefixes {
			if strings.HasPrefix(k, string(prefix)) {
				s.cache.Delete(k)
				break
			}
		}
	}
}

// cacheMiddleware answers GET requests from previously encoded responses.
func (s *Server) cacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if body, ok := s.getFromCache(r.Context(), s.getCacheKeyFromRequest(r)); ok {
			w.Header().Set("X-Go-Cache", "HIT")
			s.writeBody(w, contentTypeJSON, body.([]byte))
			return
		}
		next.ServeHTTP(w, r)
	})
}
