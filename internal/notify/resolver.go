package notify

import (
	"context"
	"fmt"

	"stagegate/internal/domain"
	"stagegate/internal/event"
	"stagegate/internal/notify/notifyconfig"
)

// Directory is the read-only view of users and role membership the
// resolver needs. Satisfied by repo.Repo.
type Directory interface {
	RoleMembersByName(ctx context.Context, name string) ([]domain.User, error)
	RoleMembersByID(ctx context.Context, roleID string) ([]domain.User, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
}

// Resolver turns a (event, config entry) pair into a concrete recipient
// set. It is a pure lookup over the directory: no delivery, no ordering
// guarantees beyond deduplication by user identity.
type Resolver struct {
	Dir Directory
}

// Resolve accumulates stage roles (stage-change events only, keyed by the
// stage carried on the event), then the entry's roles, then the project
// owner, and deduplicates by user id.
func (r Resolver) Resolve(ctx context.Context, ev event.Event, project domain.Project, entry notifyconfig.Entry) ([]Recipient, error) {
	seen := map[string]bool{}
	var out []Recipient

	add := func(users []domain.User) {
		for _, u := range users {
			if seen[u.ID] {
				continue
			}
			seen[u.ID] = true
			out = append(out, Recipient{UserID: u.ID, Name: u.Name, Email: u.Email})
		}
	}

	if staged, ok := ev.(event.Staged); ok && len(entry.StageRoles) > 0 {
		for _, roleName := range entry.StageRoles[string(staged.Stage())] {
			users, err := r.Dir.RoleMembersByName(ctx, roleName)
			if err != nil {
				return nil, fmt.Errorf("resolve stage role %s: %w", roleName, err)
			}
			add(users)
		}
	}

	for _, roleName := range entry.Roles {
		users, err := r.Dir.RoleMembersByName(ctx, roleName)
		if err != nil {
			return nil, fmt.Errorf("resolve role %s: %w", roleName, err)
		}
		add(users)
	}

	if entry.IncludeProjectOwner && project.OwnerID != nil {
		owner, err := r.Dir.GetUser(ctx, *project.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("resolve project owner: %w", err)
		}
		add([]domain.User{owner})
	}

	return out, nil
}
