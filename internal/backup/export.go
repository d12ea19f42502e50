package backup

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atinyakov/FitVault/internal/models"
	"github.com/atinyakov/FitVault/internal/store"
)

// Format names an external container encoding for export/import. The CSV and
// Markdown encodings are lossy, human-auditable alternates: they carry the
// domain data but not encryption metadata.
type Format string

const (
	// FormatBundle is the primary structured bundle encoding (JSON).
	FormatBundle Format = "bundle"
	// FormatRaw is a plain structured dump of the decoded domains.
	FormatRaw Format = "raw"
	// FormatCSV encodes domains as rows of section,data.
	FormatCSV Format = "csv"
	// FormatMarkdown encodes domains as fenced JSON blocks per section.
	FormatMarkdown Format = "markdown"
)

// Export renders a stored bundle in the requested format. Every format
// except FormatBundle requires opening the payload, prompting for the
// passphrase if the bundle is encrypted.
func (e *Engine) Export(bundleID string, format Format) ([]byte, error) {
	set, err := e.loadSet()
	if err != nil {
		return nil, err
	}
	bundle, ok := set[bundleID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, bundleID)
	}

	if format == FormatBundle {
		return json.MarshalIndent(&bundle, "", "  ")
	}

	body, err := e.openPayload(&bundle)
	if err != nil {
		return nil, err
	}
	sections := sortedSections(body)

	switch format {
	case FormatRaw:
		return json.MarshalIndent(body, "", "  ")
	case FormatCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		_ = w.Write([]string{"section", "data"})
		for _, col := range sections {
			if err := w.Write([]string{string(col), string(body[col])}); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("flush csv: %w", err)
		}
		return buf.Bytes(), nil
	case FormatMarkdown:
		var sb strings.Builder
		fmt.Fprintf(&sb, "# FitVault export %s\n", bundle.Metadata.Timestamp.Format(time.RFC3339))
		for _, col := range sections {
			fmt.Fprintf(&sb, "\n## %s\n\n```json\n%s\n```\n", col, body[col])
		}
		return []byte(sb.String()), nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// Import parses external data in the given format and persists it as a new
// bundle in the rotating set. FormatBundle keeps the original metadata
// (including its creation time and checksum); the lossy formats produce a
// fresh plaintext bundle.
func (e *Engine) Import(data []byte, format Format) (string, error) {
	switch format {
	case FormatBundle:
		var bundle Bundle
		if err := json.Unmarshal(data, &bundle); err != nil {
			return "", fmt.Errorf("parse bundle: %w", err)
		}
		if bundle.Metadata.ID == "" {
			return "", fmt.Errorf("%w: bundle has no id", ErrIntegrity)
		}
		if err := verifyChecksum(&bundle); err != nil {
			return "", err
		}
		if err := e.saveBundle(&bundle); err != nil {
			return "", err
		}
		return bundle.Metadata.ID, nil
	case FormatRaw:
		var body payload
		if err := json.Unmarshal(data, &body); err != nil {
			return "", fmt.Errorf("parse raw dump: %w", err)
		}
		return e.importPayload(body)
	case FormatCSV:
		body, err := parseCSV(data)
		if err != nil {
			return "", err
		}
		return e.importPayload(body)
	case FormatMarkdown:
		body, err := parseMarkdown(data)
		if err != nil {
			return "", err
		}
		return e.importPayload(body)
	default:
		return "", fmt.Errorf("unknown import format %q", format)
	}
}

// importPayload wraps a decoded payload into a fresh plaintext bundle and
// persists it.
func (e *Engine) importPayload(body payload) (string, error) {
	domains := sortedSections(body)
	for _, col := range domains {
		if !models.Known(col) {
			return "", fmt.Errorf("unknown section %q", col)
		}
		// Reject sections that do not decode as records of their
		// collection; imports never carry opaque data into the store.
		if _, err := store.DecodeRecords(col, body[col]); err != nil {
			return "", fmt.Errorf("section %q: %w", col, err)
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("serialize imported payload: %w", err)
	}
	meta := Metadata{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Domains:      domains,
		ChecksumAlgo: ChecksumSHA256,
	}
	meta.Checksum, err = checksum(meta.ChecksumAlgo, data)
	if err != nil {
		return "", err
	}
	bundle := &Bundle{Metadata: meta, Data: data}
	if err := e.saveBundle(bundle); err != nil {
		return "", err
	}
	return meta.ID, nil
}

// parseCSV reads rows of section,data with an optional header row.
func parseCSV(data []byte) (payload, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = 2
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	body := make(payload)
	for i, row := range rows {
		if i == 0 && row[0] == "section" && row[1] == "data" {
			continue
		}
		body[models.Collection(row[0])] = json.RawMessage(row[1])
	}
	return body, nil
}

// parseMarkdown reads "## section" headings each followed by a fenced JSON
// block.
func parseMarkdown(data []byte) (payload, error) {
	body := make(payload)
	var section models.Collection
	var block strings.Builder
	inBlock := false

	for _, line := range strings.Split(string(data), "\n") {
		switch {
		case strings.HasPrefix(line, "## "):
			section = models.Collection(strings.TrimSpace(strings.TrimPrefix(line, "## ")))
		case strings.HasPrefix(strings.TrimSpace(line), "```"):
			if inBlock {
				if section == "" {
					return nil, fmt.Errorf("parse markdown: fenced block without a section heading")
				}
				body[section] = json.RawMessage(strings.TrimSuffix(block.String(), "\n"))
				block.Reset()
				section = ""
			}
			inBlock = !inBlock
		case inBlock:
			block.WriteString(line)
			block.WriteString("\n")
		}
	}
	if inBlock {
		return nil, fmt.Errorf("parse markdown: unterminated fenced block")
	}
	return body, nil
}

func sortedSections(body payload) []models.Collection {
	sections := make([]models.Collection, 0, len(body))
	for col := range body {
		sections = append(sections, col)
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i] < sections[j] })
	return sections
}
