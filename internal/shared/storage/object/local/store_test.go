package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"clinicrx/internal/shared/storage/object"
)

func TestPutOpenURL(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	ctx := context.Background()

	n, err := store.Put(ctx, "rx/RX_Asha_1.pdf", "application/pdf", bytes.NewReader([]byte("%PDF-1.3")))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if n != 8 {
		t.Fatalf("written = %d, want 8", n)
	}

	rc, err := store.Open(ctx, "rx/RX_Asha_1.pdf")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "%PDF-1.3" {
		t.Fatalf("content = %q", data)
	}

	url, err := store.URL(ctx, "rx/RX_Asha_1.pdf", "")
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	want, _ := filepath.Abs(filepath.Join(dir, "rx", "RX_Asha_1.pdf"))
	if url != want {
		t.Fatalf("url = %q, want %q", url, want)
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	store := New(t.TempDir())
	for _, key := range []string{"", "../secret", "/etc/passwd"} {
		if _, err := store.Put(context.Background(), key, "", bytes.NewReader(nil)); !errors.Is(err, object.ErrInvalidKey) {
			t.Fatalf("Put(%q) err = %v, want ErrInvalidKey", key, err)
		}
	}
}

type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.sent {
		return 0, errors.New("disk quota exceeded")
	}
	r.sent = true
	return copy(p, "%PDF-1.3 partial"), nil
}

func TestPutRemovesPartialFile(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	if _, err := store.Put(context.Background(), "rx/RX_Asha_2.pdf", "application/pdf", &failingReader{}); err == nil {
		t.Fatalf("expected write error")
	}
	if _, err := os.Stat(filepath.Join(dir, "rx", "RX_Asha_2.pdf")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("partial file left behind: %v", err)
	}
}
