package listing

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Category string

const (
	CategoryGhost   Category = "ghost"
	CategoryShell   Category = "shell"
	CategoryBalloon Category = "balloon"
	CategoryPlugin  Category = "plugin"
)

const TopicPrefix = "ukagaka-"

// Categories is the classification priority order.
var Categories = []Category{CategoryGhost, CategoryShell, CategoryBalloon, CategoryPlugin}

func (c Category) Topic() string {
	return TopicPrefix + string(c)
}

// Classify returns the first category in priority order whose topic label is present.
// The boolean is false if the topics carry none of them.
func Classify(topics []string) (Category, bool) {
	for _, c := range Categories {
		for _, t := range topics {
			if t == c.Topic() {
				return c, true
			}
		}
	}
	return "", false
}

type Entry struct {
	ID            string
	Title         string
	Category      Category
	Author        string
	HTMLURL       string
	ContentType   string
	Version       string `json:",omitempty"`
	CreatedAt     string
	CreatedAtStr  string
	UpdatedAt     string
	UpdatedAtStr  string
	UpdatedAtRSS  string
	DownloadURL   string
	InstallURI    string
	Size          int
	FileSize      string
	FileSizeHuman string
	DownloadCount int
	Readme        string
}

type Page struct {
	Entries     []*Entry
	Categories  []Category
	Authors     []string
	GeneratedAt time.Time
}

// NewPage collects categories and authors in the order they first appear.
func NewPage(entries []*Entry, generatedAt time.Time) *Page {
	p := &Page{
		Entries:     entries,
		Categories:  make([]Category, 0),
		Authors:     make([]string, 0),
		GeneratedAt: generatedAt,
	}
	seenCategories := make(map[Category]bool)
	seenAuthors := make(map[string]bool)
	for _, e := range entries {
		if !seenCategories[e.Category] {
			seenCategories[e.Category] = true
			p.Categories = append(p.Categories, e.Category)
		}
		if !seenAuthors[e.Author] {
			seenAuthors[e.Author] = true
			p.Authors = append(p.Authors, e.Author)
		}
	}
	return p
}

func (p *Page) Find(id string) *Entry {
	for _, e := range p.Entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

const (
	TimestampLayout    = "2006-01-02 15:04:05"
	TimestampLayoutRSS = "Mon, 02 Jan 2006 15:04:05 -0700"
)

// Identifier derives the entry id and cache file stem from a "owner/name" full name.
func Identifier(fullName string) string {
	return strings.ReplaceAll(fullName, "/", "_")
}

func FormatTimestamp(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(TimestampLayout)
}

func FormatTimestampRSS(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(TimestampLayoutRSS)
}

// FormatSize converts bytes to KiB rounded half away from zero to one decimal.
func FormatSize(size int) string {
	kib := math.Round(float64(size)/1024*10) / 10
	return strconv.FormatFloat(kib, 'f', 1, 64)
}

func InstallURI(downloadURL string) string {
	return "x-ukagaka-link:type=install&url=" + url.QueryEscape(downloadURL)
}
