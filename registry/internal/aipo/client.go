// CLAUDE:SUMMARY HTTP client for the AIPO classification search endpoint and legacy detail pages, decoding result tables into records.
// Package aipo talks to the Armenian IP office search service.
//
// The service exposes a single form endpoint that answers two useful
// queries: every record tagged with a classification code, and the record
// with a given certificate id. Results are an HTML table whose cells come in
// triples (application id, title, certificate id).
package aipo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/aipo/extract"
	"github.com/hazyhaar/aipo/horosafe"
	"github.com/hazyhaar/aipo/registry/internal/icid"
	"github.com/hazyhaar/aipo/registry/internal/metrics"
	"github.com/hazyhaar/aipo/registry/internal/model"
)

// ErrTransport marks a failure to obtain an answer at all: network error,
// non-2xx status, oversized body or cancelled context. It is fatal to a run.
var ErrTransport = errors.New("aipo: transport error")

// searchPath follows "<base>/<locale>/"; the resulting doubled slash is
// the URL the service publishes.
const searchPath = "/ajax/search_mods_search_int_classification"

// Config configures the client.
type Config struct {
	SearchURL     string        // Default: https://aipo.am.
	DetailBaseURL string        // Default: https://old.aipa.am.
	Locale        string        // en, ru or hy. Default: en.
	Timeout       time.Duration // Per-request timeout. Default: 30s.
	MaxBytes      int64         // Max response body size. Default: 10MB.
	UserAgent     string
	Metrics       *metrics.Metrics // Optional.
	Logger        *slog.Logger
}

func (c *Config) defaults() {
	if c.SearchURL == "" {
		c.SearchURL = "https://aipo.am"
	}
	if c.DetailBaseURL == "" {
		c.DetailBaseURL = "https://old.aipa.am"
	}
	if c.Locale == "" {
		c.Locale = "en"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = horosafe.MaxResponseBody
	}
	if c.UserAgent == "" {
		c.UserAgent = "aipo-registry/1.0"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.SearchURL = strings.TrimRight(c.SearchURL, "/")
	c.DetailBaseURL = strings.TrimRight(c.DetailBaseURL, "/")
}

// Client is bound to one locale. It is safe for sequential use; the
// reconciler and aggregator never issue concurrent queries.
type Client struct {
	http   *http.Client
	config Config
	logger *slog.Logger
}

// New validates cfg and creates a Client.
func New(cfg Config) (*Client, error) {
	cfg.defaults()
	if !model.ValidLocale(cfg.Locale) {
		return nil, fmt.Errorf("aipo: unsupported locale %q", cfg.Locale)
	}
	if err := horosafe.ValidateBaseURL(cfg.SearchURL); err != nil {
		return nil, fmt.Errorf("aipo: search url: %w", err)
	}
	if err := horosafe.ValidateBaseURL(cfg.DetailBaseURL); err != nil {
		return nil, fmt.Errorf("aipo: detail base url: %w", err)
	}
	return &Client{
		http: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return horosafe.ValidateBaseURL(req.URL.String())
			},
		},
		config: cfg,
		logger: cfg.Logger,
	}, nil
}

// Locale returns the locale the client queries in.
func (c *Client) Locale() string { return c.config.Locale }

// DetailBaseURL returns the base URL detail links and images resolve against.
func (c *Client) DetailBaseURL() string { return c.config.DetailBaseURL }

// FetchGroup returns every record tagged with code. An empty table, a cell
// count that is not a multiple of three, or a non-numeric id cell are all
// reported as no match (nil, nil).
func (c *Client) FetchGroup(ctx context.Context, code icid.Code) ([]model.Record, error) {
	start := time.Now()
	cells, err := c.search(ctx, code.String(), "")
	if err != nil {
		c.config.Metrics.ObserveQuery(metrics.KindGroup, metrics.OutcomeError, start)
		return nil, fmt.Errorf("group %s: %w", code, err)
	}
	if len(cells)%3 != 0 {
		c.logger.Debug("aipo: malformed group answer", "code", code.String(), "cells", len(cells))
		c.config.Metrics.ObserveQuery(metrics.KindGroup, metrics.OutcomeNoMatch, start)
		return nil, nil
	}

	records := make([]model.Record, 0, len(cells)/3)
	for i := 0; i < len(cells); i += 3 {
		rec, err := c.decodeTriple(cells[i : i+3])
		if err != nil {
			c.logger.Debug("aipo: malformed group row", "code", code.String(), "row", i/3, "error", err)
			c.config.Metrics.ObserveQuery(metrics.KindGroup, metrics.OutcomeNoMatch, start)
			return nil, nil
		}
		records = append(records, rec)
	}

	outcome := metrics.OutcomeMatch
	if len(records) == 0 {
		outcome = metrics.OutcomeNoMatch
		records = nil
	}
	c.config.Metrics.ObserveQuery(metrics.KindGroup, outcome, start)
	return records, nil
}

// FetchPoint returns the record with certificate id. found is false when the
// service answers with anything other than exactly one row for that id.
func (c *Client) FetchPoint(ctx context.Context, id int) (rec model.Record, found bool, err error) {
	start := time.Now()
	cells, err := c.search(ctx, "", strconv.Itoa(id))
	if err != nil {
		c.config.Metrics.ObserveQuery(metrics.KindPoint, metrics.OutcomeError, start)
		return model.Record{}, false, fmt.Errorf("point %d: %w", id, err)
	}
	defer func() {
		outcome := metrics.OutcomeNoMatch
		if found {
			outcome = metrics.OutcomeMatch
		}
		c.config.Metrics.ObserveQuery(metrics.KindPoint, outcome, start)
	}()

	if len(cells) != 3 {
		if len(cells) != 0 {
			c.logger.Debug("aipo: malformed point answer", "id", id, "cells", len(cells))
		}
		return model.Record{}, false, nil
	}
	rec, err = c.decodeTriple(cells)
	if err != nil {
		c.logger.Debug("aipo: malformed point row", "id", id, "error", err)
		return model.Record{}, false, nil
	}
	if rec.CertificateID != id {
		c.logger.Debug("aipo: point answer for another id", "id", id, "got", rec.CertificateID)
		return model.Record{}, false, nil
	}
	return rec, true, nil
}

// FetchDetail downloads a record's detail page.
func (c *Client) FetchDetail(ctx context.Context, link string) ([]byte, error) {
	start := time.Now()
	if err := horosafe.ValidateBaseURL(link); err != nil {
		c.config.Metrics.ObserveQuery(metrics.KindDetail, metrics.OutcomeError, start)
		return nil, fmt.Errorf("detail %s: %w", link, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("detail: new request: %w", err)
	}
	body, err := c.do(req)
	if err != nil {
		c.config.Metrics.ObserveQuery(metrics.KindDetail, metrics.OutcomeError, start)
		return nil, fmt.Errorf("detail %s: %w", link, err)
	}
	c.config.Metrics.ObserveQuery(metrics.KindDetail, metrics.OutcomeMatch, start)
	return body, nil
}

// search posts the classification search form. Exactly one of code and id
// is set; every other field of the form is sent empty.
func (c *Client) search(ctx context.Context, code, id string) ([]string, error) {
	form := url.Values{
		"logic":    {"partial"},
		"FMAD":     {code},
		"Reg_num":  {id},
		"App_num":  {""},
		"App_date": {""},
		"name":     {""},
		"AppPers":  {""},
		"Auth":     {""},
		"Owner":    {""},
	}
	endpoint := c.config.SearchURL + "/" + c.config.Locale + "/" + searchPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	cells, err := extract.Cells(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return cells, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("User-Agent", c.config.UserAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http %d", ErrTransport, resp.StatusCode)
	}
	body, err := horosafe.LimitedReadAll(resp.Body, c.config.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	return body, nil
}

func (c *Client) decodeTriple(cells []string) (model.Record, error) {
	appID, err := strconv.Atoi(cells[0])
	if err != nil {
		return model.Record{}, fmt.Errorf("application id %q: %w", cells[0], err)
	}
	certID, err := strconv.Atoi(cells[2])
	if err != nil {
		return model.Record{}, fmt.Errorf("certificate id %q: %w", cells[2], err)
	}
	return model.Record{
		CertificateID: certID,
		ApplicationID: appID,
		Title:         cells[1],
		Link:          model.RecordLink(c.config.DetailBaseURL, certID, c.config.Locale),
	}, nil
}
