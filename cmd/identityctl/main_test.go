package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"

	"pickly.app/internal/auth"
	"pickly.app/internal/httpapi"
	"pickly.app/internal/store/sqldb"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("identityctl %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func sqliteEnv(t *testing.T) string {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "ctl.db")
	t.Setenv("PICKLY_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("PICKLY_DB_DRIVER", "sqlite3")
	t.Setenv("PICKLY_DB_DSN", dsn)
	t.Setenv("PICKLY_JWT_ACCESS_SECRET", "access-secret")
	t.Setenv("PICKLY_JWT_REFRESH_SECRET", "refresh-secret")
	t.Setenv("PICKLY_LOG_LEVEL", "error")
	return dsn
}

// registerDirect creates a principal through the service on its own
// connection, as the API server would.
func registerDirect(t *testing.T, dsn, email string) {
	t.Helper()
	st, err := sqldb.Open(sqldb.SQLite, dsn, sqldb.PoolConfig{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	codec, err := auth.NewTokenCodec("access-secret", "refresh-secret")
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	cheap := auth.NewHasher(auth.HashParams{Time: 1, Memory: 64, Threads: 1})
	svc, err := auth.NewService(st, st, codec, auth.WithPasswordHasher(cheap), auth.WithSessionHasher(cheap))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	if _, err := svc.Register(context.Background(), auth.RegisterInput{Email: email, Secret: "hunter22"}); err != nil {
		t.Fatalf("register: %v", err)
	}
}

func TestMigrateLifecycle(t *testing.T) {
	sqliteEnv(t)

	if out := mustRun(t, "migrate", "status"); strings.Count(out, "pending") != 2 {
		t.Fatalf("expected two pending migrations:\n%s", out)
	}
	if out := mustRun(t, "migrate", "up"); !strings.Contains(out, "applied 0002_access.up.sql") {
		t.Fatalf("unexpected up output:\n%s", out)
	}
	if out := mustRun(t, "migrate", "up"); !strings.Contains(out, "up to date") {
		t.Fatalf("second up should be a no-op:\n%s", out)
	}
	if out := mustRun(t, "migrate", "seed"); strings.Count(out, "seeded") != 3 {
		t.Fatalf("expected three seeds:\n%s", out)
	}
	if out := mustRun(t, "migrate", "down"); !strings.Contains(out, "rolled back 0002_access") {
		t.Fatalf("unexpected down output:\n%s", out)
	}
	mustRun(t, "migrate", "down")
	if out := mustRun(t, "migrate", "down"); !strings.Contains(out, "nothing to roll back") {
		t.Fatalf("expected nothing to roll back:\n%s", out)
	}
}

func TestPrincipalAndAccessCommands(t *testing.T) {
	dsn := sqliteEnv(t)
	mustRun(t, "migrate", "up")
	mustRun(t, "migrate", "seed")
	registerDirect(t, dsn, "ops@example.com")

	if out := mustRun(t, "principal", "show", "--email", "OPS@example.com"); !strings.Contains(out, "admin:    false") {
		t.Fatalf("unexpected show output:\n%s", out)
	}
	mustRun(t, "principal", "admin", "--email", "ops@example.com", "--set")
	if out := mustRun(t, "principal", "show", "--email", "ops@example.com"); !strings.Contains(out, "admin:    true") {
		t.Fatalf("admin flag not set:\n%s", out)
	}
	if _, err := runCLI(t, "principal", "admin", "--email", "ops@example.com"); err == nil {
		t.Fatalf("expected error without --set or --unset")
	}
	if _, err := runCLI(t, "principal", "show", "--email", "ghost@example.com"); err == nil {
		t.Fatalf("expected error for unknown principal")
	}

	mustRun(t, "principal", "link", "--email", "ops@example.com", "--holder", "H-ops")
	if out := mustRun(t, "menu", "tree", "--email", "ops@example.com"); !strings.Contains(out, "no visible menus") {
		t.Fatalf("expected no menus before assignment:\n%s", out)
	}

	mustRun(t, "access", "assign", "--holder", "H-ops", "--profile", "ac02")
	out := mustRun(t, "menu", "tree", "--email", "ops@example.com")
	for _, key := range []string{"dashboard", "relation", "picks"} {
		if !strings.Contains(out, key) {
			t.Fatalf("expected %s in tree:\n%s", key, out)
		}
	}

	if out := mustRun(t, "access", "grant-menus", "--profile", "ac02", "--menu", "picks"); !strings.Contains(out, "ac02: picks") {
		t.Fatalf("unexpected grant output:\n%s", out)
	}
	if _, err := runCLI(t, "access", "grant-menus", "--profile", "ac02", "--menu", "ghost"); err == nil {
		t.Fatalf("expected error for unknown menu key")
	}

	mustRun(t, "access", "revoke", "--holder", "H-ops", "--profile", "ac02")
	if out := mustRun(t, "menu", "tree", "--email", "ops@example.com"); !strings.Contains(out, "no visible menus") {
		t.Fatalf("expected no menus after revoke:\n%s", out)
	}
}

func TestMemoryDriverIsRejected(t *testing.T) {
	t.Setenv("PICKLY_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("PICKLY_DB_DRIVER", "memory")
	if _, err := runCLI(t, "migrate", "status"); err == nil {
		t.Fatalf("expected memory driver to be rejected")
	}
}

func TestHealthCommand(t *testing.T) {
	srv, monitor := httpapi.NewGRPCServer(nil, time.Second, nil)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("serve: %v", err)
		}
	}()
	t.Cleanup(srv.Stop)

	if _, err := runCLI(t, "health", "--addr", lis.Addr().String()); err == nil {
		t.Fatalf("expected failure before the first probe")
	}

	monitor.CheckOnce(context.Background())
	out := mustRun(t, "health", "--addr", lis.Addr().String(), "--service", httpapi.HealthService)
	// protojson varies whitespace between runs, so match the value only.
	if !strings.Contains(out, `"SERVING"`) {
		t.Fatalf("unexpected health output:\n%s", out)
	}
}
