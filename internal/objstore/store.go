// Package objstore stores version artifacts (source documents, rendered
// pages, structure snapshots) under deterministic keys behind a pluggable
// backend. Signed URLs are stateless HMAC tokens served by the HTTP layer.
package objstore

import (
	"context"
	"fmt"

	rerr "github.com/swscloud/reviewd/internal/errors"
)

// Store is the object storage abstraction.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// VersionKey builds the deterministic artifact key for a version file.
// name is one of source.docx, preview.pdf, structure.json, pdf_layout.json,
// page_map.json.
func VersionKey(projectID, documentID, versionID int64, name string) string {
	return fmt.Sprintf("projects/%d/documents/%d/versions/%d/%s", projectID, documentID, versionID, name)
}

// KBKey builds the artifact key for a knowledge-base source.
func KBKey(sourceID int64, name string) string {
	return fmt.Sprintf("kb/sources/%d/%s", sourceID, name)
}

func notFound(key string) error {
	return rerr.Newf(rerr.CategoryNotFound, rerr.SeverityError, "object %s not found", key)
}
