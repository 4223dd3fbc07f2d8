package health

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestStatusWithoutDatabase(t *testing.T) {
	got := NewService(nil, "upload").Status(context.Background())
	if got["ok"] != true || got["database"] != "memory" || got["archive"] != "upload" {
		t.Fatalf("status = %v", got)
	}
}

func TestStatusPingsDatabase(t *testing.T) {
	tests := []struct {
		name    string
		pingErr error
		wantOK  bool
		wantDB  string
	}{
		{name: "up", wantOK: true, wantDB: "up"},
		{name: "down", pingErr: errors.New("connection refused"), wantOK: false, wantDB: "down"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
			if err != nil {
				t.Fatalf("sqlmock.New: %v", err)
			}
			t.Cleanup(func() { _ = db.Close() })
			mock.ExpectPing().WillReturnError(tt.pingErr)

			got := NewService(db, "store").Status(context.Background())
			if got["ok"] != tt.wantOK || got["database"] != tt.wantDB {
				t.Fatalf("status = %v", got)
			}
		})
	}
}
