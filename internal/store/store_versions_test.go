package store

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

var versionCols = []string{"id", "page_id", "content", "created_by", "created_at"}

func TestInsertVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	content := json.RawMessage(`{"type":"text","text":"v1"}`)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO page_versions (id, page_id, content, created_by, created_at)`)).
		WithArgs(sqlmock.AnyArg(), "p1", []byte(content), "u1").
		WillReturnRows(sqlmock.NewRows(versionCols).AddRow("v1", "p1", []byte(content), "u1", time.Now()))

	rec, err := (&Store{DB: db}).InsertVersion(context.Background(), "p1", content, "u1")
	if err != nil {
		t.Fatalf("InsertVersion: %v", err)
	}
	if rec.ID != "v1" || rec.PageID != "p1" || string(rec.Content) != string(content) {
		t.Fatalf("unexpected version %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListVersionsNewestFirst(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC, id DESC`)).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(versionCols).
			AddRow("v2", "p1", []byte(`"b"`), "u1", now).
			AddRow("v1", "p1", []byte(`"a"`), "u1", now.Add(-time.Minute)))

	out, err := (&Store{DB: db}).ListVersions(context.Background(), "p1")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(out) != 2 || out[0].ID != "v2" {
		t.Fatalf("unexpected versions %+v", out)
	}
}

func TestDeleteVersions(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM page_versions WHERE page_id=$1`)).WithArgs("p1").WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := (&Store{DB: db}).DeleteVersions(context.Background(), "p1")
	if err != nil || n != 3 {
		t.Fatalf("DeleteVersions n=%d err=%v", n, err)
	}
}

func TestGetVersionMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM page_versions`)).WithArgs("nope").WillReturnRows(sqlmock.NewRows(versionCols))
	if _, ok, err := (&Store{DB: db}).GetVersion(context.Background(), "nope"); ok || err != nil {
		t.Fatalf("expected missing version, got ok=%v err=%v", ok, err)
	}
}
