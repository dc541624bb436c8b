package feed

import (
	"encoding/xml"
	"fmt"
)

// Parsing structures for RSS 2.0 documents carrying Media RSS
// (http://search.yahoo.com/mrss/) extensions. Only the elements the
// poller acts on are modelled.
type (
	mrssDocument struct {
		XMLName xml.Name    `xml:"rss"`
		Channel mrssChannel `xml:"channel"`
	}

	mrssChannel struct {
		Title string     `xml:"title"`
		Items []mrssItem `xml:"item"`
	}

	mrssItem struct {
		Title       string        `xml:"title"`
		Description string        `xml:"description"`
		Groups      []mrssGroup   `xml:"group"`
		Contents    []mrssContent `xml:"content"`
	}

	mrssGroup struct {
		Contents []mrssContent `xml:"content"`
	}

	mrssContent struct {
		URL    string `xml:"url,attr"`
		Type   string `xml:"type,attr"`
		Width  int    `xml:"width,attr"`
		Height int    `xml:"height,attr"`
	}
)

const (
	mp4MimeType    = "video/mp4"
	preferredWidth = 1080
)

func parseMRSS(document []byte) (*mrssDocument, error) {
	var parsed mrssDocument
	if err := xml.Unmarshal(document, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse document as media RSS: %w", err)
	}

	return &parsed, nil
}

// mediaContents flattens an items media:content entries, whether they
// appear directly on the item or nested inside media:group elements.
func (item *mrssItem) mediaContents() []mrssContent {
	contents := make([]mrssContent, 0, len(item.Contents))
	contents = append(contents, item.Contents...)
	for _, group := range item.Groups {
		contents = append(contents, group.Contents...)
	}

	return contents
}

// selectContent picks the media entry the poller should ingest for this
// item. A 1080-wide MP4 takes priority over any other MP4 rendition; items
// with no MP4 rendition at all are skipped (nil return).
func (item *mrssItem) selectContent() *mrssContent {
	contents := item.mediaContents()

	for i := range contents {
		if contents[i].Type == mp4MimeType && contents[i].Width == preferredWidth {
			return &contents[i]
		}
	}

	for i := range contents {
		if contents[i].Type == mp4MimeType {
			return &contents[i]
		}
	}

	return nil
}
