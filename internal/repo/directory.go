package repo

import (
	"context"
	"database/sql"

	"stagegate/internal/domain"
)

// Directory data: users, roles, memberships, skills. Owned by admin flows;
// the engine only reads it for recipient resolution and owner lookup.

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,name,email,created_at) VALUES (?,?,?,?)`,
		u.ID, u.Name, u.Email, u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,email,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,email,created_at FROM users ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func scanUsers(rows *sql.Rows) ([]domain.User, error) {
	var res []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) InsertRole(ctx context.Context, role domain.Role) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO roles(id,name,description) VALUES (?,?,?)`,
		role.ID, role.Name, nullable(role.Description))
	return err
}

func (r Repo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	var role domain.Role
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,description FROM roles WHERE name=?`, name).
		Scan(&role.ID, &role.Name, &desc)
	if err == sql.ErrNoRows {
		return role, ErrNotFound
	}
	if desc.Valid {
		role.Description = desc.String
	}
	return role, err
}

func (r Repo) ListRoles(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,description FROM roles ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Role
	for rows.Next() {
		var role domain.Role
		var desc sql.NullString
		if err := rows.Scan(&role.ID, &role.Name, &desc); err != nil {
			return nil, err
		}
		if desc.Valid {
			role.Description = desc.String
		}
		res = append(res, role)
	}
	return res, rows.Err()
}

func (r Repo) AddRoleMember(ctx context.Context, roleID, userID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO role_members(role_id,user_id) VALUES (?,?)`, roleID, userID)
	return err
}

func (r Repo) RemoveRoleMember(ctx context.Context, roleID, userID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM role_members WHERE role_id=? AND user_id=?`, roleID, userID)
	return err
}

// RoleMembersByName resolves a role name to its member users. A missing
// role resolves to an empty membership, not an error.
func (r Repo) RoleMembersByName(ctx context.Context, name string) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT u.id,u.name,u.email,u.created_at FROM users u
JOIN role_members m ON m.user_id=u.id
JOIN roles ro ON ro.id=m.role_id
WHERE ro.name=? ORDER BY u.id ASC`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (r Repo) RoleMembersByID(ctx context.Context, roleID string) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT u.id,u.name,u.email,u.created_at FROM users u
JOIN role_members m ON m.user_id=u.id
WHERE m.role_id=? ORDER BY u.id ASC`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (r Repo) InsertSkill(ctx context.Context, s domain.Skill) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO skills(id,name) VALUES (?,?)`, s.ID, s.Name)
	return err
}

func (r Repo) ListSkills(ctx context.Context) ([]domain.Skill, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name FROM skills ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Skill
	for rows.Next() {
		var s domain.Skill
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) AssignSkill(ctx context.Context, userID, skillID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO user_skills(user_id,skill_id) VALUES (?,?)`, userID, skillID)
	return err
}

func (r Repo) UserSkills(ctx context.Context, userID string) ([]domain.Skill, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT s.id,s.name FROM skills s
JOIN user_skills us ON us.skill_id=s.id
WHERE us.user_id=? ORDER BY s.name ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Skill
	for rows.Next() {
		var s domain.Skill
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
