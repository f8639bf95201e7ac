package aipo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/aipo/registry/internal/aipo/aipotest"
	"github.com/hazyhaar/aipo/registry/internal/icid"
	"github.com/hazyhaar/aipo/registry/internal/metrics"
)

func newClient(t *testing.T, base string) *Client {
	t.Helper()
	c, err := New(Config{SearchURL: base, DetailBaseURL: base, Locale: "ru"})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestFetchGroup_DecodesTriples(t *testing.T) {
	// WHAT: A group answer becomes records with derived links.
	// WHY: The snapshot is built from these records.
	srv := aipotest.New(t)
	srv.AddGroup("01-02",
		aipotest.Row{ApplicationID: 20120001, Title: "Bottle", CertificateID: 5},
		aipotest.Row{ApplicationID: 20120002, Title: "Chair & table", CertificateID: 6},
	)
	c := newClient(t, srv.URL)

	recs, err := c.FetchGroup(context.Background(), icid.Code{Class: 1, Subclass: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("records: %+v", recs)
	}
	if recs[1].CertificateID != 6 || recs[1].ApplicationID != 20120002 || recs[1].Title != "Chair & table" {
		t.Errorf("record: %+v", recs[1])
	}
	want := srv.URL + "/search_mods/industrial_design/view_item.php?id=5&language=ru"
	if recs[0].Link != want {
		t.Errorf("link: got %q, want %q", recs[0].Link, want)
	}
}

func TestFetchGroup_EmptyIsNoMatch(t *testing.T) {
	srv := aipotest.New(t)
	recs, err := newClient(t, srv.URL).FetchGroup(context.Background(), icid.Code{Class: 3, Subclass: 99})
	if err != nil || recs != nil {
		t.Fatalf("recs=%v err=%v", recs, err)
	}
}

func TestFetchGroup_MalformedIsNoMatch(t *testing.T) {
	// WHAT: A cell count not divisible by three, or a non-numeric id, is no match.
	for _, body := range []string{
		`<table><tr><td>1</td><td>x</td></tr></table>`,
		`<table><tr><td>1</td><td>x</td><td>abc</td></tr></table>`,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, body)
		}))
		recs, err := newClient(t, srv.URL).FetchGroup(context.Background(), icid.Code{Class: 1, Subclass: 1})
		srv.Close()
		if err != nil || recs != nil {
			t.Errorf("%s: recs=%v err=%v", body, recs, err)
		}
	}
}

func TestFetchPoint(t *testing.T) {
	srv := aipotest.New(t)
	srv.AddPoint(aipotest.Row{ApplicationID: 11, Title: "Lamp", CertificateID: 3})
	c := newClient(t, srv.URL)

	rec, found, err := c.FetchPoint(context.Background(), 3)
	if err != nil || !found || rec.Title != "Lamp" {
		t.Fatalf("rec=%+v found=%v err=%v", rec, found, err)
	}

	_, found, err = c.FetchPoint(context.Background(), 4)
	if err != nil || found {
		t.Fatalf("missing id: found=%v err=%v", found, err)
	}
}

func TestFetchPoint_MismatchedIDIsNoMatch(t *testing.T) {
	// WHAT: An answer carrying another certificate id counts as not found.
	// WHY: Accepting it would break density of the canonical sequence.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, aipotest.Table(aipotest.Row{ApplicationID: 1, Title: "x", CertificateID: 99}))
	}))
	defer srv.Close()

	_, found, err := newClient(t, srv.URL).FetchPoint(context.Background(), 7)
	if err != nil || found {
		t.Fatalf("found=%v err=%v", found, err)
	}
}

func TestSearch_FormFields(t *testing.T) {
	// WHAT: The search form carries every field, the unused ones empty.
	var got map[string][]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		got = r.PostForm
		path = r.URL.Path
	}))
	defer srv.Close()

	newClient(t, srv.URL).FetchPoint(context.Background(), 12)

	if path != "/ru//ajax/search_mods_search_int_classification" {
		t.Errorf("path: %q", path)
	}
	if got["logic"][0] != "partial" || got["Reg_num"][0] != "12" || got["FMAD"][0] != "" {
		t.Errorf("form: %v", got)
	}
	for _, k := range []string{"App_num", "App_date", "name", "AppPers", "Auth", "Owner"} {
		if v, ok := got[k]; !ok || v[0] != "" {
			t.Errorf("field %s: %v", k, v)
		}
	}
}

func TestTransportErrors(t *testing.T) {
	// WHAT: Non-2xx, oversized bodies and cancelled contexts are ErrTransport.
	srv := aipotest.New(t)
	srv.FailOn("Reg_num=1")
	c := newClient(t, srv.URL)

	if _, _, err := c.FetchPoint(context.Background(), 1); !errors.Is(err, ErrTransport) {
		t.Errorf("500: err = %v", err)
	}

	big := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 2048))
	}))
	defer big.Close()
	small, err := New(Config{SearchURL: big.URL, DetailBaseURL: big.URL, MaxBytes: 1024})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := small.FetchGroup(context.Background(), icid.Code{Class: 1}); !errors.Is(err, ErrTransport) {
		t.Errorf("too large: err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = c.FetchPoint(ctx, 2)
	if !errors.Is(err, ErrTransport) || !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled: err = %v", err)
	}
}

func TestFetchDetail(t *testing.T) {
	srv := aipotest.New(t)
	srv.AddDetail(9, `<p class="captions">(11) Number</p><p class="data">9</p>`)
	c := newClient(t, srv.URL)

	body, err := c.FetchDetail(context.Background(), srv.URL+"/search_mods/industrial_design/view_item.php?id=9&language=ru")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "(11)") {
		t.Errorf("body: %s", body)
	}
	if _, err := c.FetchDetail(context.Background(), "file:///etc/passwd"); err == nil {
		t.Error("non-http link must be rejected")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Locale: "fr"}); err == nil {
		t.Error("unsupported locale should fail")
	}
	if _, err := New(Config{SearchURL: "ftp://aipo.am"}); err == nil {
		t.Error("ftp search url should fail")
	}
}

func TestMetricsRecorded(t *testing.T) {
	srv := aipotest.New(t)
	m := metrics.New()
	c, err := New(Config{SearchURL: srv.URL, DetailBaseURL: srv.URL, Metrics: m})
	if err != nil {
		t.Fatal(err)
	}
	c.FetchPoint(context.Background(), 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `aipo_upstream_queries_total{kind="point",outcome="nomatch"} 1`) {
		t.Error("point nomatch not counted")
	}
}
