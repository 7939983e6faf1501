package object

import (
	"context"
	"fmt"
	"io"
	"path"

	"visibility-backend/internal/shared/util"
)

// ObjectStore defines the contract for archiving and retrieving blobs by key.
type ObjectStore interface {
	Put(ctx context.Context, key string, contentType string, r io.Reader) (sizeBytes int64, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// ArchiveKey builds the storage key for an analysis payload archive.
// Users are namespaced by a hash so raw IDs never appear in object paths.
func ArchiveKey(userID, analysisID string) (string, error) {
	name, err := util.SanitizeKeySegment(analysisID)
	if err != nil {
		return "", fmt.Errorf("archive key: %w", err)
	}
	return path.Join("analyses", util.HashUserKey(userID), name+".json"), nil
}
