// CLAUDE:SUMMARY Atomic per-record .md writer: sanitized detail HTML converted to markdown under YAML frontmatter.
package buffer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/aipo/horosafe"
)

// Metadata is the frontmatter of a record's markdown file.
type Metadata struct {
	CertificateID int       `yaml:"certificate_id"`
	Locale        string    `yaml:"locale"`
	Title         string    `yaml:"title"`
	SourceURL     string    `yaml:"source_url"`
	ICIDCodes     []string  `yaml:"icid_codes,omitempty"`
	ExtractedAt   time.Time `yaml:"extracted_at"`
}

// MarkdownWriter deposits <dir>/<locale>/<certificate_id>.md files.
type MarkdownWriter struct {
	dir    string
	conv   *converter.Converter
	policy *bluemonday.Policy
}

// NewMarkdownWriter creates a writer rooted at dir. The directory is
// created on first write.
func NewMarkdownWriter(dir string) *MarkdownWriter {
	return &MarkdownWriter{
		dir: dir,
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

// Write sanitizes the detail page, converts it to markdown and writes it
// under frontmatter. Returns the path of the written file.
func (w *MarkdownWriter) Write(ctx context.Context, meta Metadata, page string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target, err := horosafe.SafePath(w.dir, meta.Locale+"/"+strconv.Itoa(meta.CertificateID)+".md")
	if err != nil {
		return "", fmt.Errorf("buffer: %s/%d: %w", meta.Locale, meta.CertificateID, err)
	}

	clean := w.policy.Sanitize(page)
	body, err := w.conv.ConvertString(clean, converter.WithDomain(meta.SourceURL))
	if err != nil {
		return "", fmt.Errorf("buffer: markdown %d: %w", meta.CertificateID, err)
	}

	front, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("buffer: frontmatter %d: %w", meta.CertificateID, err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(front)
	b.WriteString("---\n\n")
	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n")

	if err := writeAtomic(target, []byte(b.String())); err != nil {
		return "", err
	}
	return target, nil
}
