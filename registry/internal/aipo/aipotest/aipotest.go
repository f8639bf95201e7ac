// Package aipotest provides an in-process fake of the AIPO search service
// and legacy detail site for tests.
package aipotest

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Row is one result-table row.
type Row struct {
	ApplicationID int
	Title         string
	CertificateID int
}

// Server answers group queries from Groups, point queries from Points and
// detail pages from Details. Unknown keys answer an empty result page.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	groups   map[string][]Row
	points   map[int]Row
	details  map[int]string
	failAt   map[string]int
	requests []string
}

// New starts a fake server closed by t.Cleanup.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		groups:  map[string][]Row{},
		points:  map[int]Row{},
		details: map[int]string{},
		failAt:  map[string]int{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// AddGroup registers the answer to a classification code query.
func (s *Server) AddGroup(code string, rows ...Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[code] = append(s.groups[code], rows...)
}

// AddPoint registers the answer to a certificate id query.
func (s *Server) AddPoint(r Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[r.CertificateID] = r
}

// AddDetail registers a detail page body for a certificate id.
func (s *Server) AddDetail(id int, page string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details[id] = page
}

// FailOn makes the query with the given key ("FMAD=01-01", "Reg_num=7",
// "detail=7") answer 500.
func (s *Server) FailOn(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAt[key] = http.StatusInternalServerError
}

// Requests returns the query keys received so far, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/ajax/search_mods_search_int_classification"):
		s.serveSearch(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/view_item.php"):
		s.serveDetail(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) serveSearch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	code, id := r.PostForm.Get("FMAD"), r.PostForm.Get("Reg_num")

	var key string
	var rows []Row
	s.mu.Lock()
	switch {
	case code != "":
		key = "FMAD=" + code
		rows = s.groups[code]
	case id != "":
		key = "Reg_num=" + id
		n, _ := strconv.Atoi(id)
		if row, ok := s.points[n]; ok {
			rows = []Row{row}
		}
	}
	s.requests = append(s.requests, key)
	status := s.failAt[key]
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, "upstream failure", status)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, Table(rows...))
}

func (s *Server) serveDetail(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(r.URL.Query().Get("id"))
	key := "detail=" + strconv.Itoa(id)
	s.mu.Lock()
	s.requests = append(s.requests, key)
	page, ok := s.details[id]
	status := s.failAt[key]
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, "upstream failure", status)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, page)
}

// Table renders rows the way the search service does. No rows renders a
// "nothing found" page without cells.
func Table(rows ...Row) string {
	if len(rows) == 0 {
		return `<div class="no-result">Nothing found</div>`
	}
	var b strings.Builder
	b.WriteString(`<table class="result"><tbody>`)
	for _, r := range rows {
		fmt.Fprintf(&b, "<tr>\n  <td>%d</td>\n  <td><a href=\"#\">%s</a></td>\n  <td>%d</td>\n</tr>",
			r.ApplicationID, html.EscapeString(r.Title), r.CertificateID)
	}
	b.WriteString(`</tbody></table>`)
	return b.String()
}
