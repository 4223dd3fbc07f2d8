// Package delivery saves rendered prescriptions to local storage.
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"clinicrx/internal/feedback"
	"clinicrx/internal/shared/storage/object"
	"clinicrx/internal/shared/telemetry"
	"clinicrx/internal/shared/util"
	"clinicrx/prescription/render"
)

// UnknownPatient replaces a blank patient name in file names.
const UnknownPatient = "Unknown"

// LocalSaveError reports a failed local save. It is only ever delivered
// through the notification sink and the log.
type LocalSaveError struct {
	FileName string
	Err      error
}

func (e *LocalSaveError) Error() string {
	return fmt.Sprintf("save %s: %v", e.FileName, e.Err)
}

func (e *LocalSaveError) Unwrap() error { return e.Err }

// FileName builds RX_{patient}_{unix millis}.{pdf|jpg}.
func FileName(patientName string, format render.Format, now time.Time) string {
	return fmt.Sprintf("RX_%s_%d.%s", util.SanitizeFileName(patientName, UnknownPatient), now.UnixMilli(), format.Extension())
}

// Deliverer writes artifacts to a local store.
type Deliverer struct {
	Store object.Store
	Sink  feedback.Sink
	Now   func() time.Time
}

// Save writes art under a generated file name and returns its path. Failures
// are reported to the sink and logged; the caller gets "".
func (d *Deliverer) Save(ctx context.Context, art render.Artifact, patientName string) string {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	sink := d.Sink
	if sink == nil {
		sink = feedback.Discard
	}
	name := FileName(patientName, art.Format, now())

	path, err := d.save(ctx, art, name)
	if err != nil {
		saveErr := &LocalSaveError{FileName: name, Err: err}
		telemetry.Error("local save failed", map[string]any{"file_name": name, "error": saveErr})
		sink.Notify("Failed to save prescription: "+saveErr.Error(), feedback.KindError)
		return ""
	}
	telemetry.Info("local save", map[string]any{"file_name": name, "path": path, "bytes": len(art.Data)})
	sink.Notify("Prescription saved as "+name, feedback.KindSuccess)
	return path
}

func (d *Deliverer) save(ctx context.Context, art render.Artifact, name string) (string, error) {
	if d.Store == nil {
		return "", fmt.Errorf("no local store configured")
	}
	if len(art.Data) == 0 {
		return "", fmt.Errorf("empty artifact")
	}
	contentType := art.ContentType
	if contentType == "" {
		contentType = art.Format.ContentType()
	}
	if _, err := d.Store.Put(ctx, name, contentType, bytes.NewReader(art.Data)); err != nil {
		return "", err
	}
	return d.Store.URL(ctx, name, name)
}
