// Package validator enforces the construction-time invariants of upload
// commands: file size and format limits, taxonomy depth, language codes, and
// priority bounds. Violations are aggregated per field so a client sees every
// problem in one response.
package validator

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion"
)

const (
	MaxFileSize             = 50 * 1024 * 1024
	MaxFileNameLength       = 255
	MaxTaxonomyDepth        = 10
	MaxIdempotencyKeyLength = 255
	MinPriority             = 1
	MaxPriority             = 10
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// ValidateUploadCommand checks every invariant of an upload command and
// returns a ValidationError listing all violations, or nil when the command
// is well formed.
func ValidateUploadCommand(cmd *ingestion.UploadCommand) error {
	errs := make(map[string]string)

	name := strings.TrimSpace(cmd.FileName)
	if name == "" {
		errs["file_name"] = "file name is required"
	} else if len(cmd.FileName) > MaxFileNameLength {
		errs["file_name"] = fmt.Sprintf("file name must be at most %d characters", MaxFileNameLength)
	}

	if len(cmd.FileContent) == 0 {
		errs["file"] = "file content must not be empty"
	} else if len(cmd.FileContent) > MaxFileSize {
		errs["file"] = fmt.Sprintf("file must be at most %dMB", MaxFileSize/(1024*1024))
	}

	if !cmd.FileFormat.Valid() {
		errs["format"] = fmt.Sprintf("format must be one of: %s", ingestion.SupportedFormats())
	} else if name != "" {
		if ext := ingestion.FileExtension(cmd.FileName); ext != string(cmd.FileFormat) {
			errs["format"] = fmt.Sprintf("file extension %q does not match declared format %q", ext, cmd.FileFormat)
		}
	}

	if len(cmd.TaxonomyPath) == 0 {
		errs["taxonomy_path"] = "taxonomy path is required"
	} else if len(cmd.TaxonomyPath) > MaxTaxonomyDepth {
		errs["taxonomy_path"] = fmt.Sprintf("taxonomy path must have at most %d segments", MaxTaxonomyDepth)
	} else {
		for _, segment := range cmd.TaxonomyPath {
			if strings.TrimSpace(segment) == "" {
				errs["taxonomy_path"] = "taxonomy path segments must not be empty"
				break
			}
		}
	}

	if !validLanguage(cmd.Language) {
		errs["language"] = "language must be a two-letter lowercase ISO 639-1 code"
	}

	if cmd.Priority < MinPriority || cmd.Priority > MaxPriority {
		errs["priority"] = fmt.Sprintf("priority must be between %d and %d", MinPriority, MaxPriority)
	}

	if len(cmd.IdempotencyKey) > MaxIdempotencyKeyLength {
		errs["idempotency_key"] = fmt.Sprintf("idempotency key must be at most %d characters", MaxIdempotencyKeyLength)
	}

	if cmd.SourceURL != "" {
		if u, err := url.Parse(cmd.SourceURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs["source_url"] = "source url must be an absolute http or https url"
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func validLanguage(code string) bool {
	if len(code) != 2 {
		return false
	}
	for _, r := range code {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
