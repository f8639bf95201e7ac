// CLAUDE:SUMMARY Sentinel errors for the registry service: missing stage prerequisites, invalid locale, unknown patent.
package registry

import (
	"errors"

	"github.com/hazyhaar/aipo/registry/internal/store"
)

// ErrMissingSnapshot is returned when the canonical stage finds no ICID.json.
var ErrMissingSnapshot = errors.New("registry: snapshot missing, build it first")

// ErrMissingCanonical is returned when the details stage finds no patents.json.
var ErrMissingCanonical = errors.New("registry: canonical sequence missing, build it first")

// ErrInvalidLocale is returned for a locale outside en, ru, hy.
var ErrInvalidLocale = errors.New("registry: unsupported locale")

// ErrNoIndex is returned by queries when the service runs without an index.
var ErrNoIndex = errors.New("registry: no index configured")

// ErrNotFound is returned when a certificate id is not in the index.
var ErrNotFound = store.ErrNotFound
