// Package detail parses the legacy registry's record page into a field map.
//
// The page is a flat run of <p> elements: a "captions" paragraph names the
// field by its INID code, e.g. "(54) Title", the "data" paragraph after it
// carries the value, and styled paragraphs hold the design's images.
package detail

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/aipo/extract"
)

var (
	// ErrDuplicateExpired is returned when a page carries more than one
	// caption with an unknown code.
	ErrDuplicateExpired = errors.New("detail: second unknown caption in one record")

	// ErrOrphanData is returned when a data paragraph precedes every caption.
	ErrOrphanData = errors.New("detail: data without a preceding caption")
)

// KeyExpired is the field an unknown caption's value is stored under.
// In practice the only unlisted caption is the expiry notice.
const KeyExpired = "expired"

// Captions maps INID caption codes to field names.
var Captions = map[string]string{
	"(11)": "id",
	"(13)": "document_view_code",
	"(21)": "application_id",
	"(22)": "application_date",
	"(31)": "first_application_info",
	"(51)": "ICID_codes",
	"(54)": "title",
	"(71)": "applicant",
	"(72)": "authors",
	"(73)": "patent_owner",
	"(55)": "images",
}

// Fields is one record's details. Values are int for id and
// application_id, []string for authors, ICID_codes and images, and string
// otherwise. Fields absent from the page are absent from the map.
type Fields map[string]any

// ID returns the certificate id field, if the page carried a valid one.
func (f Fields) ID() (int, bool) {
	switch v := f["id"].(type) {
	case int:
		return v, true
	case float64: // decoded from JSON
		return int(v), true
	}
	return 0, false
}

// Parse reads a record page. Image sources are resolved against baseURL.
func Parse(body []byte, baseURL string) (Fields, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("detail: base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("detail: parse html: %w", err)
	}

	fields := Fields{}
	var key string
	var unknown int
	var parseErr error

	doc.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		text := extract.Text(p.Nodes[0])
		switch {
		case p.HasClass("captions"):
			code := text
			if len(code) > 4 {
				code = code[:4]
			}
			name, ok := Captions[code]
			if !ok {
				unknown++
				if unknown > 1 {
					parseErr = fmt.Errorf("%w: caption %q", ErrDuplicateExpired, text)
					return false
				}
				name = KeyExpired
			}
			key = name

		case p.HasClass("data"):
			if key == "" {
				parseErr = fmt.Errorf("%w: %q", ErrOrphanData, text)
				return false
			}
			// images only ever holds the collected image URLs.
			if key == "images" {
				return true
			}
			v, err := value(key, text)
			if err != nil {
				parseErr = err
				return false
			}
			fields[key] = v

		case extract.HasAttr(p.Nodes[0], "style"):
			img := p.Find("img")
			if img.Length() == 0 {
				return true
			}
			src := strings.TrimSpace(extract.Attr(img.Nodes[0], "src"))
			if src == "" {
				return true
			}
			ref, err := url.Parse(src)
			if err != nil {
				parseErr = fmt.Errorf("detail: image src %q: %w", src, err)
				return false
			}
			images, _ := fields["images"].([]string)
			fields["images"] = append(images, base.ResolveReference(ref).String())
		}
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return fields, nil
}

func value(key, text string) (any, error) {
	switch key {
	case "id", "application_id":
		n, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return nil, fmt.Errorf("detail: %s %q: %w", key, text, err)
		}
		return n, nil
	case "authors":
		parts := strings.Split(text, ")")
		authors := make([]string, 0, len(parts)-1)
		for _, name := range parts[:len(parts)-1] {
			name = strings.TrimLeft(strings.TrimSpace(name), ",; ")
			authors = append(authors, name+")")
		}
		return authors, nil
	case "ICID_codes":
		var codes []string
		for c := range strings.SplitSeq(text, ",") {
			if c = strings.TrimSpace(c); c != "" {
				codes = append(codes, c)
			}
		}
		return codes, nil
	}
	return text, nil
}
