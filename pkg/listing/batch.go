package listing

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const MaxBatchSize = 100

// BatchRequest asks for the download details of several entries at once.
type BatchRequest struct {
	IDs []string `json:"ids"`
}

func (b *BatchRequest) Validate() error {
	if len(b.IDs) == 0 {
		return errors.New("at least one entry is required")
	}
	if len(b.IDs) > MaxBatchSize {
		return fmt.Errorf("at most %d entries can be requested, got %d", MaxBatchSize, len(b.IDs))
	}
	seen := make(map[string]bool, len(b.IDs))
	for _, id := range b.IDs {
		if id == "" {
			return errors.New("entry id is empty")
		}
		if seen[id] {
			return fmt.Errorf("entry %s requested multiple times", id)
		}
		seen[id] = true
	}
	return nil
}

// Hash identifies the request independent of the listing contents.
func (b *BatchRequest) Hash() string {
	sum := sha256.Sum256([]byte(strings.Join(b.IDs, "\n")))
	return hex.EncodeToString(sum[:])
}

type BatchEntry struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Category    Category `json:"category"`
	Version     string   `json:"version,omitempty"`
	DownloadURL string   `json:"downloadUrl"`
	InstallURI  string   `json:"installUri"`
	Size        int      `json:"size"`
}

type BatchResponse struct {
	Entries     []*BatchEntry `json:"entries"`
	GeneratedAt string        `json:"generatedAt"`
}

// NewBatchResponse resolves every requested id against the page.
func NewBatchResponse(page *Page, req *BatchRequest) (*BatchResponse, error) {
	res := &BatchResponse{
		Entries:     make([]*BatchEntry, 0, len(req.IDs)),
		GeneratedAt: page.GeneratedAt.Format(TimestampLayout),
	}
	for _, id := range req.IDs {
		e := page.Find(id)
		if e == nil {
			return nil, fmt.Errorf("entry %s does not exist", id)
		}
		res.Entries = append(res.Entries, &BatchEntry{
			ID:          e.ID,
			Title:       e.Title,
			Category:    e.Category,
			Version:     e.Version,
			DownloadURL: e.DownloadURL,
			InstallURI:  e.InstallURI,
			Size:        e.Size,
		})
	}
	return res, nil
}
