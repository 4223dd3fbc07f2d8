package archive

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"clinicrx/internal/feedback"
	"clinicrx/internal/shared/storage/object/local"
	"clinicrx/prescription/render"
)

type capturedUpload struct {
	fileName     string
	contentType  string
	preset       string
	resourceType string
	publicID     string
	size         int
}

func uploadServer(t *testing.T, status int, body string, got *capturedUpload, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		if got != nil {
			if err := r.ParseMultipartForm(10 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			file, header, err := r.FormFile("file")
			if err != nil {
				t.Errorf("form file: %v", err)
			} else {
				data, _ := io.ReadAll(file)
				got.fileName = header.Filename
				got.contentType = header.Header.Get("Content-Type")
				got.size = len(data)
			}
			got.preset = r.FormValue("upload_preset")
			got.resourceType = r.FormValue("resource_type")
			got.publicID = r.FormValue("public_id")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func pdfArtifact() render.Artifact {
	return render.Artifact{Data: []byte("%PDF-1.3 test"), ContentType: "application/pdf", Format: render.FormatPDF}
}

func jpegArtifact() render.Artifact {
	return render.Artifact{Data: []byte{0xff, 0xd8, 0xff}, ContentType: "image/jpeg", Format: render.FormatJPEG}
}

func TestNormalizeFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     string
		format render.Format
		want   string
	}{
		{name: "pdf appended", in: "foo", format: render.FormatPDF, want: "foo.pdf"},
		{name: "jpg appended", in: "foo", format: render.FormatJPEG, want: "foo.jpg"},
		{name: "pdf kept", in: "foo.pdf", format: render.FormatPDF, want: "foo.pdf"},
		{name: "pdf kept upper", in: "FOO.PDF", format: render.FormatPDF, want: "FOO.PDF"},
		{name: "jpeg kept", in: "scan.jpeg", format: render.FormatJPEG, want: "scan.jpeg"},
		{name: "wrong extension", in: "foo.pdf", format: render.FormatJPEG, want: "foo.pdf.jpg"},
		{name: "blank", in: " ", format: render.FormatPDF, want: "prescription.pdf"},
		{name: "spaces", in: "Rx Asha", format: render.FormatPDF, want: "Rx_Asha.pdf"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeFileName(tt.in, tt.format); got != tt.want {
				t.Fatalf("NormalizeFileName(%q, %s) = %q, want %q", tt.in, tt.format, got, tt.want)
			}
		})
	}
}

func TestForceAttachment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{
			in:   "https://res.example.com/demo/raw/upload/v1700/prescriptions/foo.pdf",
			want: "https://res.example.com/demo/raw/upload/fl_attachment/v1700/prescriptions/foo.pdf",
		},
		{
			in:   "https://res.example.com/demo/raw/upload/fl_attachment/v1700/foo.pdf",
			want: "https://res.example.com/demo/raw/upload/fl_attachment/v1700/foo.pdf",
		},
		{
			in:   "https://files.example.com/foo.pdf",
			want: "https://files.example.com/foo.pdf",
		},
	}
	for _, tt := range tests {
		got := ForceAttachment(tt.in)
		if got != tt.want {
			t.Fatalf("ForceAttachment(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := ForceAttachment(got); again != got {
			t.Fatalf("ForceAttachment not idempotent: %q", again)
		}
		if strings.Contains(tt.in, "/upload/") && strings.Count(got, "/upload/fl_attachment/") != 1 {
			t.Fatalf("expected exactly one attachment flag in %q", got)
		}
	}
}

func TestArchiveSubmitsForm(t *testing.T) {
	tests := []struct {
		name         string
		art          render.Artifact
		fileName     string
		wantFile     string
		wantResource string
	}{
		{name: "pdf", art: pdfArtifact(), fileName: "foo", wantFile: "foo.pdf", wantResource: "raw"},
		{name: "pdf already suffixed", art: pdfArtifact(), fileName: "foo.pdf", wantFile: "foo.pdf", wantResource: "raw"},
		{name: "jpeg", art: jpegArtifact(), fileName: "foo", wantFile: "foo.jpg", wantResource: "auto"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var got capturedUpload
			srv := uploadServer(t, http.StatusOK, `{"secure_url":"https://res.example.com/demo/raw/upload/v1/prescriptions/foo"}`, &got, nil)
			client, err := NewClient(Config{Endpoint: srv.URL, UploadPreset: "clinic-pdf", Folder: "prescriptions"})
			if err != nil {
				t.Fatalf("new client: %v", err)
			}

			url, err := client.Archive(context.Background(), tt.art, tt.fileName)
			if err != nil {
				t.Fatalf("archive: %v", err)
			}
			if url != "https://res.example.com/demo/raw/upload/fl_attachment/v1/prescriptions/foo" {
				t.Fatalf("url = %q", url)
			}
			if got.fileName != tt.wantFile {
				t.Fatalf("submitted file name = %q, want %q", got.fileName, tt.wantFile)
			}
			if got.contentType != tt.art.ContentType {
				t.Fatalf("part content type = %q", got.contentType)
			}
			if got.preset != "clinic-pdf" || got.resourceType != tt.wantResource {
				t.Fatalf("fields preset=%q resource_type=%q", got.preset, got.resourceType)
			}
			if got.publicID != "prescriptions/"+tt.wantFile {
				t.Fatalf("public_id = %q", got.publicID)
			}
			if got.size != len(tt.art.Data) {
				t.Fatalf("file size = %d, want %d", got.size, len(tt.art.Data))
			}
		})
	}
}

func TestArchiveFailureRoundTrip(t *testing.T) {
	var hits int32
	srv := uploadServer(t, http.StatusBadRequest, `{"error":{"message":"X"}}`, nil, &hits)
	client, err := NewClient(Config{Endpoint: srv.URL, UploadPreset: "clinic-pdf"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	sink := &feedback.Recorder{}
	_, err = feedback.Track(context.Background(), sink, "Uploading prescription...", "Upload failed: ", func(ctx context.Context) (string, error) {
		return client.Archive(ctx, pdfArtifact(), "foo")
	})

	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected *UploadError, got %T %v", err, err)
	}
	if uploadErr.Message != "X" || uploadErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("upload error = %+v", uploadErr)
	}
	if !errors.Is(err, ErrUpload) {
		t.Fatalf("errors.Is(err, ErrUpload) = false")
	}
	if busy, _ := sink.Busy(); busy {
		t.Fatalf("busy indicator left visible")
	}
	notes := sink.Notifications()
	if len(notes) != 1 || notes[0].Kind != feedback.KindError || !strings.HasSuffix(notes[0].Message, "X") {
		t.Fatalf("notifications = %+v", notes)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("requests = %d, want exactly one attempt", hits)
	}
}

func TestArchiveFailureWithoutMessage(t *testing.T) {
	srv := uploadServer(t, http.StatusBadGateway, `<html>bad gateway</html>`, nil, nil)
	client, _ := NewClient(Config{Endpoint: srv.URL})
	_, err := client.Archive(context.Background(), pdfArtifact(), "foo")
	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected *UploadError, got %v", err)
	}
	if uploadErr.Message != "upload failed with status 502" {
		t.Fatalf("message = %q", uploadErr.Message)
	}
}

func TestArchiveMissingSecureURL(t *testing.T) {
	srv := uploadServer(t, http.StatusOK, `{}`, nil, nil)
	client, _ := NewClient(Config{Endpoint: srv.URL})
	if _, err := client.Archive(context.Background(), pdfArtifact(), "foo"); !errors.Is(err, ErrUpload) {
		t.Fatalf("expected ErrUpload, got %v", err)
	}
}

func TestArchiveTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	client, _ := NewClient(Config{Endpoint: endpoint})
	_, err := client.Archive(context.Background(), pdfArtifact(), "foo")
	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected *UploadError, got %v", err)
	}
	if uploadErr.Err == nil || uploadErr.Message == "" {
		t.Fatalf("transport cause not carried: %+v", uploadErr)
	}
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}

func TestStoreArchiver(t *testing.T) {
	dir := t.TempDir()
	ids := []string{"a1", "b2"}
	a := &StoreArchiver{
		Store:  local.New(dir),
		Folder: "prescriptions",
		NewID: func() string {
			id := ids[0]
			ids = ids[1:]
			return id
		},
	}

	first, err := a.Archive(context.Background(), pdfArtifact(), "RX_Asha")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	second, err := a.Archive(context.Background(), pdfArtifact(), "RX_Asha")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if first == second {
		t.Fatalf("two archives share a location: %s", first)
	}
	if filepath.Base(first) != "RX_Asha.pdf" {
		t.Fatalf("archived name = %s", filepath.Base(first))
	}
	data, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("read archived file: %v", err)
	}
	if string(data) != string(pdfArtifact().Data) {
		t.Fatalf("archived content mismatch")
	}
}
