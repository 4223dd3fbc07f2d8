package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clinicrx/prescription/layout"
	"clinicrx/prescription/model"
)

// Format is the output encoding of a rendered prescription.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatJPEG Format = "jpeg"
)

// JPEGQuality is the encoder quality used by the raster backend.
const JPEGQuality = 95

// ParseFormat maps user input to a Format. The empty string selects PDF.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "pdf", "application/pdf":
		return FormatPDF, nil
	case "jpeg", "jpg", "image", "image/jpeg":
		return FormatJPEG, nil
	default:
		return "", fmt.Errorf("unsupported format %q", raw)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "application/pdf"
}

// Extension returns the file extension without the leading dot.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return "pdf"
}

// Artifact is a rendered document held in memory.
type Artifact struct {
	Data        []byte
	ContentType string
	Format      Format
	Pages       int
}

// Backend turns a layout plan into encoded bytes.
type Backend interface {
	Draw(plan layout.Plan) ([]byte, error)
}

// ErrRender matches every RenderError.
var ErrRender = errors.New("render failed")

// RenderError reports that a backend could not produce output.
type RenderError struct {
	Format Format
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Format, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

func (e *RenderError) Is(target error) bool { return target == ErrRender }

// Renderer lays out a prescription and hands the plan to the backend for the
// requested format. The zero value renders with the built-in backends in UTC.
type Renderer struct {
	Location *time.Location
	Now      func() time.Time
	Vector   Backend
	Raster   Backend
}

// Render produces a PDF or JPEG for the record. Both formats share one layout
// plan, measured with the vector backend's font metrics.
func (r *Renderer) Render(ctx context.Context, format Format, record model.ClinicalRecord, patient model.PatientProfile, doctor model.PractitionerProfile) (art Artifact, err error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	backend, err := r.backend(format)
	if err != nil {
		return Artifact{}, &RenderError{Format: format, Err: err}
	}

	defer func() {
		if rec := recover(); rec != nil {
			art = Artifact{}
			err = &RenderError{Format: format, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	measurer, err := newPDFMeasurer()
	if err != nil {
		return Artifact{}, &RenderError{Format: format, Err: err}
	}
	plan := layout.Build(record, patient, doctor, layout.Options{
		Measurer: measurer,
		Now:      r.Now,
		Location: r.Location,
	})

	data, err := backend.Draw(plan)
	if err != nil {
		return Artifact{}, &RenderError{Format: format, Err: err}
	}
	if len(data) == 0 {
		return Artifact{}, &RenderError{Format: format, Err: errors.New("backend produced no output")}
	}
	return Artifact{
		Data:        data,
		ContentType: format.ContentType(),
		Format:      format,
		Pages:       len(plan.Pages),
	}, nil
}

func (r *Renderer) backend(format Format) (Backend, error) {
	switch format {
	case FormatPDF:
		if r.Vector != nil {
			return r.Vector, nil
		}
		return VectorBackend{}, nil
	case FormatJPEG:
		if r.Raster != nil {
			return r.Raster, nil
		}
		return RasterBackend{}, nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}
