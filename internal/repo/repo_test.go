package repo_test

import (
	"context"
	"errors"
	"testing"

	"stagegate/internal/db"
	"stagegate/internal/domain"
	"stagegate/internal/migrate"
	"stagegate/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatal(err)
	}
	return repo.Repo{DB: conn}
}

func TestGetRoleByName(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	if err := r.InsertRole(ctx, domain.Role{ID: "r-dm", Name: "Deployment Manager", Description: "release approvals"}); err != nil {
		t.Fatal(err)
	}

	role, err := r.GetRoleByName(ctx, "Deployment Manager")
	if err != nil {
		t.Fatal(err)
	}
	if role.ID != "r-dm" || role.Description != "release approvals" {
		t.Fatalf("role = %+v", role)
	}

	if _, err := r.GetRoleByName(ctx, "Ghost Role"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing role error = %v, want ErrNotFound", err)
	}
}
