package archive

import (
	"bytes"
	"context"
	"path"

	"github.com/google/uuid"

	"clinicrx/internal/shared/storage/object"
	"clinicrx/internal/shared/telemetry"
	"clinicrx/prescription/render"
)

// StoreArchiver archives into an object store and returns the store's
// download URL for the object, which for S3 is a presigned attachment link.
type StoreArchiver struct {
	Store  object.Store
	Folder string
	NewID  func() string
}

// Archive implements Archiver. Every call writes a new object.
func (a *StoreArchiver) Archive(ctx context.Context, art render.Artifact, fileName string) (string, error) {
	name := NormalizeFileName(fileName, art.Format)
	newID := a.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	key := path.Join(a.Folder, newID(), name)

	contentType := art.ContentType
	if contentType == "" {
		contentType = art.Format.ContentType()
	}
	if _, err := a.Store.Put(ctx, key, contentType, bytes.NewReader(art.Data)); err != nil {
		return "", uploadErrorf(0, err, "store archive: %v", err)
	}
	url, err := a.Store.URL(ctx, key, name)
	if err != nil {
		return "", uploadErrorf(0, err, "archive url: %v", err)
	}
	telemetry.Info("archive stored", map[string]any{"key": key, "bytes": len(art.Data)})
	return url, nil
}

var _ Archiver = (*StoreArchiver)(nil)
