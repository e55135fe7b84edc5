package render

import (
	"encoding/xml"
	"io"

	"github.com/narstation/narstation/pkg/listing"
)

type rss struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	DC      string     `xml:"xmlns:dc,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string       `xml:"title"`
	Link        string       `xml:"link"`
	Description string       `xml:"description"`
	Category    string       `xml:"category"`
	Author      string       `xml:"dc:creator,omitempty"`
	GUID        rssGUID      `xml:"guid"`
	PubDate     string       `xml:"pubDate"`
	Enclosure   rssEnclosure `xml:"enclosure"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int    `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

func (r *Renderer) Feed(w io.Writer, page *listing.Page) error {
	ch := rssChannel{
		Title:         r.site.Title,
		Link:          r.site.URL,
		Description:   r.site.Title,
		Language:      "ja",
		LastBuildDate: page.GeneratedAt.Format(listing.TimestampLayoutRSS),
		Items:         make([]rssItem, 0, len(page.Entries)),
	}
	for _, e := range page.Entries {
		ch.Items = append(ch.Items, rssItem{
			Title:       e.Title,
			Link:        e.HTMLURL,
			Description: e.Readme,
			Category:    string(e.Category),
			Author:      e.Author,
			GUID:        rssGUID{IsPermaLink: true, Value: e.DownloadURL},
			PubDate:     e.UpdatedAtRSS,
			Enclosure:   rssEnclosure{URL: e.DownloadURL, Length: e.Size, Type: e.ContentType},
		})
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	return enc.Encode(rss{Version: "2.0", DC: "http://purl.org/dc/elements/1.1/", Channel: ch})
}
