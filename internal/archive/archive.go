// Package archive uploads rendered prescriptions to remote storage and
// returns a URL the document can be downloaded from.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"clinicrx/internal/shared/util"
	"clinicrx/prescription/render"
)

// DefaultFileName is used when the caller supplies a blank name.
const DefaultFileName = "prescription"

const (
	uploadSegment     = "/upload/"
	attachmentSegment = "fl_attachment/"
)

// Archiver stores an artifact remotely and returns its retrieval URL.
type Archiver interface {
	Archive(ctx context.Context, art render.Artifact, fileName string) (string, error)
}

// ErrUpload matches every UploadError.
var ErrUpload = errors.New("upload failed")

// UploadError reports a failed archive attempt. Message is the reason given by
// the remote end when there is one.
type UploadError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *UploadError) Error() string {
	return e.Message
}

func (e *UploadError) Unwrap() error { return e.Err }

func (e *UploadError) Is(target error) bool { return target == ErrUpload }

// NormalizeFileName returns name with the extension matching format,
// appending it unless already present. The check ignores case and accepts
// ".jpeg" for JPEG artifacts.
func NormalizeFileName(name string, format render.Format) string {
	clean := util.SanitizeFileName(name, DefaultFileName)
	lower := strings.ToLower(clean)
	switch format {
	case render.FormatJPEG:
		if strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg") {
			return clean
		}
	default:
		if strings.HasSuffix(lower, ".pdf") {
			return clean
		}
	}
	return clean + "." + format.Extension()
}

// ForceAttachment inserts the attachment flag after the first "/upload/"
// path segment so browsers download the file instead of previewing it. URLs
// without that segment, or already flagged, are returned unchanged.
func ForceAttachment(rawURL string) string {
	idx := strings.Index(rawURL, uploadSegment)
	if idx < 0 {
		return rawURL
	}
	rest := rawURL[idx+len(uploadSegment):]
	if strings.HasPrefix(rest, attachmentSegment) {
		return rawURL
	}
	return rawURL[:idx+len(uploadSegment)] + attachmentSegment + rest
}

func resourceType(format render.Format) string {
	if format == render.FormatPDF {
		return "raw"
	}
	return "auto"
}

func publicID(folder, fileName string) string {
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "" {
		return ""
	}
	return path.Join(folder, fileName)
}

func uploadErrorf(status int, err error, format string, args ...any) *UploadError {
	return &UploadError{StatusCode: status, Message: fmt.Sprintf(format, args...), Err: err}
}
