// Package model holds the record types shared by every stage of a registry
// rebuild: the search-result Record, the per-code Group, the Snapshot a
// sweep produces and the canonical Sequence a reconciliation produces.
package model

import (
	"fmt"
	"slices"
	"strings"
)

// Locales are the languages the search service answers in, in the order an
// "all" run visits them.
var Locales = []string{"en", "ru", "hy"}

// AllLocales is the pseudo-locale that expands to Locales.
const AllLocales = "all"

// ValidLocale reports whether l is one of Locales.
func ValidLocale(l string) bool {
	return slices.Contains(Locales, l)
}

// ExpandLocale resolves a user choice into the locales to process.
func ExpandLocale(l string) ([]string, error) {
	l = strings.ToLower(strings.TrimSpace(l))
	switch {
	case l == "":
		return []string{"en"}, nil
	case l == AllLocales:
		return slices.Clone(Locales), nil
	case ValidLocale(l):
		return []string{l}, nil
	}
	return nil, fmt.Errorf("model: %q is not a supported locale", l)
}

// Record is one registered industrial design as listed by the search service.
// Identity is CertificateID alone.
type Record struct {
	CertificateID int    `json:"certificate_id"`
	ApplicationID int    `json:"application_id"`
	Title         string `json:"title"`
	Link          string `json:"patent_link"`
}

// RecordLink builds the detail-page URL of a certificate. base is the
// scheme and host of the legacy registry site, without trailing slash.
func RecordLink(base string, certificateID int, locale string) string {
	return fmt.Sprintf("%s/search_mods/industrial_design/view_item.php?id=%d&language=%s",
		strings.TrimRight(base, "/"), certificateID, locale)
}

// Group is the non-empty answer to one classification-code query.
type Group struct {
	Code string   `json:"ICID_code"`
	Data []Record `json:"data"`
}

// Snapshot is the result of sweeping every classification code once.
type Snapshot struct {
	ParsingDate string  `json:"parsing_date"`
	Entries     int     `json:"entries"`
	Groups      []Group `json:"icid_code_groups"`
}

// Pool flattens the groups into the candidate pool, in group order.
// Records tagged with several codes appear once per code.
func (s *Snapshot) Pool() []Record {
	pool := make([]Record, 0, s.Entries)
	for _, g := range s.Groups {
		pool = append(pool, g.Data...)
	}
	return pool
}

// Sequence is the canonical registry: records strictly ascending by id, and
// together with Gaps covering 1..N exactly once.
type Sequence struct {
	Records []Record
	Gaps    []int
}

// Last returns the highest id covered by the sequence, record or gap.
func (s *Sequence) Last() int {
	last := 0
	if n := len(s.Records); n > 0 {
		last = s.Records[n-1].CertificateID
	}
	if n := len(s.Gaps); n > 0 && s.Gaps[n-1] > last {
		last = s.Gaps[n-1]
	}
	return last
}
