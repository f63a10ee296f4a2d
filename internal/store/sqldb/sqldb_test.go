package sqldb

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"pickly.app/internal/access"
	"pickly.app/internal/auth"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
		_ = db.Close()
	})
	return New(db, Postgres), mock
}

func TestRebind(t *testing.T) {
	pg := New(nil, Postgres)
	if got := pg.rebind("a = ? and b in (?,?)"); got != "a = $1 and b in ($2,$3)" {
		t.Fatalf("unexpected postgres rebind: %s", got)
	}
	lite := New(nil, SQLite)
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite query should be untouched: %s", got)
	}
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{"pgx": Postgres, "postgres": Postgres, "sqlite": SQLite, "SQLITE3": SQLite} {
		got, err := ParseDialect(in)
		if err != nil || got != want {
			t.Fatalf("ParseDialect(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDialect("mysql"); err == nil {
		t.Fatalf("expected error for mysql")
	}
}

func TestSQLiteDSN(t *testing.T) {
	got := sqliteDSN("file:test.db?_busy_timeout=100")
	want := "file:test.db?_busy_timeout=100&_journal_mode=WAL&_foreign_keys=on"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestCreatePrincipalMapsUniqueViolation(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`insert into principals`)).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := s.CreatePrincipal(context.Background(), &auth.Principal{ID: "p1", Email: "a@x.io", CreatedAt: time.Now()})
	if !errors.Is(err, auth.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestFindPrincipalNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`from principals where email = $1`)).
		WithArgs("a@x.io").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := s.FindPrincipalByEmail(context.Background(), "a@x.io"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRevokeReportsWinner(t *testing.T) {
	s, mock := newMock(t)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	q := regexp.QuoteMeta(`update refresh_sessions set revoked_at = $1`) + `\s+` +
		regexp.QuoteMeta(`where id = $2 and revoked_at is null`)
	mock.ExpectExec(q).WithArgs(at, "s1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(at, "s1").WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := s.Revoke(context.Background(), "s1", at)
	if err != nil || !won {
		t.Fatalf("first revoke: won=%v err=%v", won, err)
	}
	won, err = s.Revoke(context.Background(), "s1", at)
	if err != nil || won {
		t.Fatalf("second revoke: won=%v err=%v", won, err)
	}
}

func TestListLiveQueryShape(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "principal_id", "token_hash", "created_at", "expires_at", "revoked_at"}).
		AddRow("s2", "p1", "h2", now.Add(-time.Minute), now.Add(time.Hour), nil).
		AddRow("s1", "p1", "h1", now.Add(-2*time.Minute), now.Add(time.Hour), nil)
	mock.ExpectQuery(`order by created_at desc, id desc\s+limit \$3`).
		WithArgs("p1", now, 5).
		WillReturnRows(rows)

	live, err := s.ListLive(context.Background(), "p1", now, 5)
	if err != nil {
		t.Fatalf("ListLive: %v", err)
	}
	if len(live) != 2 || live[0].ID != "s2" || live[0].RevokedAt != nil {
		t.Fatalf("unexpected sessions: %+v", live)
	}
}

func TestSetAdminMissingPrincipal(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`update principals set admin = $1 where id = $2`)).
		WithArgs(true, "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := s.SetAdmin(context.Background(), "ghost", true); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReplaceGrantsRunsInTransaction(t *testing.T) {
	s, mock := newMock(t)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`and menu_id not in ($3,$4)`)).
		WithArgs(at, "ac01", "m1", "m2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	upsert := regexp.QuoteMeta(`insert into profile_menu_grants`)
	mock.ExpectExec(upsert).WithArgs("ac01", "m1", at).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(upsert).WithArgs("ac01", "m2", at).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.ReplaceGrants(context.Background(), "ac01", []string{"m1", "m2"}, at); err != nil {
		t.Fatalf("ReplaceGrants: %v", err)
	}
}

func TestReplaceGrantsRollsBackOnMissingMenu(t *testing.T) {
	s, mock := newMock(t)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(`update profile_menu_grants`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`insert into profile_menu_grants`).WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectRollback()

	err := s.ReplaceGrants(context.Background(), "ac01", []string{"ghost"}, at)
	if !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGrantedMenuKeysSkipsEmptyInput(t *testing.T) {
	s, _ := newMock(t)
	keys, err := s.GrantedMenuKeys(context.Background(), nil)
	if err != nil || keys != nil {
		t.Fatalf("expected no query and no keys, got %v err=%v", keys, err)
	}
}

func TestCreateMenuConflict(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`insert into menu_nodes`).WillReturnError(&pgconn.PgError{Code: "23505"})
	err := s.CreateMenu(context.Background(), &access.MenuNode{ID: "m1", Key: "dup", Title: "Dup"})
	if !errors.Is(err, access.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
