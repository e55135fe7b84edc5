package pipeline

import (
	"time"
	"unicode/utf8"

	"github.com/Masterminds/semver/v3"
	"github.com/dustin/go-humanize"
	"github.com/google/go-github/v59/github"
	"github.com/narstation/narstation/pkg/listing"
	"golang.org/x/text/encoding/japanese"
)

// selectAsset returns the first asset with the given content type. Later matches are ignored.
func selectAsset(assets []*github.ReleaseAsset, contentType string) *github.ReleaseAsset {
	for _, asset := range assets {
		if asset.GetContentType() == contentType {
			return asset
		}
	}
	return nil
}

func releaseVersion(tag string) string {
	v, err := semver.NewVersion(tag)
	if err != nil {
		return tag
	}
	return v.String()
}

// decodeText returns readme bytes as UTF-8; non-UTF-8 input is treated as Shift_JIS,
// which is common for ukagaka readme files.
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}

func rawTimestamp(ts github.Timestamp) string {
	return ts.Time.UTC().Format(time.RFC3339)
}

func newEntry(item *github.Repository, category listing.Category, release *github.RepositoryRelease, asset *github.ReleaseAsset, readme string, loc *time.Location) *listing.Entry {
	createdAt := asset.GetCreatedAt()
	updatedAt := asset.GetUpdatedAt()
	size := asset.GetSize()
	if size < 0 {
		size = 0
	}
	return &listing.Entry{
		ID:            listing.Identifier(item.GetFullName()),
		Title:         item.GetName(),
		Category:      category,
		Author:        item.GetOwner().GetLogin(),
		HTMLURL:       item.GetHTMLURL(),
		ContentType:   asset.GetContentType(),
		Version:       releaseVersion(release.GetTagName()),
		CreatedAt:     rawTimestamp(createdAt),
		CreatedAtStr:  listing.FormatTimestamp(createdAt.Time, loc),
		UpdatedAt:     rawTimestamp(updatedAt),
		UpdatedAtStr:  listing.FormatTimestamp(updatedAt.Time, loc),
		UpdatedAtRSS:  listing.FormatTimestampRSS(updatedAt.Time, loc),
		DownloadURL:   asset.GetBrowserDownloadURL(),
		InstallURI:    listing.InstallURI(asset.GetBrowserDownloadURL()),
		Size:          size,
		FileSize:      listing.FormatSize(size),
		FileSizeHuman: humanize.IBytes(uint64(size)),
		DownloadCount: asset.GetDownloadCount(),
		Readme:        readme,
	}
}
