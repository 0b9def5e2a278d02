package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"stagegate/internal/domain"
)

const ruleColumns = `id,name,description,event_type,stage,role_ids,user_ids,active,created_at,updated_at`

func marshalStringSlice(in []string) (*string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func unmarshalStringSlice(in sql.NullString) ([]string, error) {
	if !in.Valid || in.String == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(in.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r Repo) InsertRule(ctx context.Context, rule domain.NotificationRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	roleIDs, err := marshalStringSlice(rule.RoleIDs)
	if err != nil {
		return err
	}
	userIDs, err := marshalStringSlice(rule.UserIDs)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO notification_rules(`+ruleColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rule.ID, rule.Name, nullable(rule.Description), rule.EventType, nullableStringPtr(rule.Stage),
		nullableStringPtr(roleIDs), nullableStringPtr(userIDs), boolToInt(rule.Active), rule.CreatedAt, rule.UpdatedAt)
	return err
}

func (r Repo) UpdateRule(ctx context.Context, rule domain.NotificationRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	roleIDs, err := marshalStringSlice(rule.RoleIDs)
	if err != nil {
		return err
	}
	userIDs, err := marshalStringSlice(rule.UserIDs)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE notification_rules SET name=?, description=?, event_type=?, stage=?, role_ids=?, user_ids=?, active=?, updated_at=? WHERE id=?`,
		rule.Name, nullable(rule.Description), rule.EventType, nullableStringPtr(rule.Stage),
		nullableStringPtr(roleIDs), nullableStringPtr(userIDs), boolToInt(rule.Active), rule.UpdatedAt, rule.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetRuleActive(ctx context.Context, id string, active bool, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notification_rules SET active=?, updated_at=? WHERE id=?`,
		boolToInt(active), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetRule(ctx context.Context, id string) (domain.NotificationRule, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM notification_rules WHERE id=?`, id)
	return scanRuleRow(row)
}

func scanRuleRow(row *sql.Row) (domain.NotificationRule, error) {
	var rule domain.NotificationRule
	var desc, st, roleIDs, userIDs sql.NullString
	var active int
	err := row.Scan(&rule.ID, &rule.Name, &desc, &rule.EventType, &st, &roleIDs, &userIDs, &active, &rule.CreatedAt, &rule.UpdatedAt)
	if err == sql.ErrNoRows {
		return rule, ErrNotFound
	}
	if err != nil {
		return rule, err
	}
	return fillRule(rule, desc, st, roleIDs, userIDs, active)
}

func fillRule(rule domain.NotificationRule, desc, st, roleIDs, userIDs sql.NullString, active int) (domain.NotificationRule, error) {
	if desc.Valid {
		rule.Description = desc.String
	}
	if st.Valid {
		rule.Stage = &st.String
	}
	var err error
	if rule.RoleIDs, err = unmarshalStringSlice(roleIDs); err != nil {
		return rule, fmt.Errorf("rule %s role_ids: %w", rule.ID, err)
	}
	if rule.UserIDs, err = unmarshalStringSlice(userIDs); err != nil {
		return rule, fmt.Errorf("rule %s user_ids: %w", rule.ID, err)
	}
	rule.Active = active != 0
	return rule, nil
}

// ListRules returns all rules; pass a non-empty eventType to filter.
func (r Repo) ListRules(ctx context.Context, eventType string) ([]domain.NotificationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM notification_rules`
	var args []any
	if eventType != "" {
		query += ` WHERE event_type=?`
		args = append(args, eventType)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.NotificationRule
	for rows.Next() {
		var rule domain.NotificationRule
		var desc, st, roleIDs, userIDs sql.NullString
		var active int
		if err := rows.Scan(&rule.ID, &rule.Name, &desc, &rule.EventType, &st, &roleIDs, &userIDs, &active, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		rule, err = fillRule(rule, desc, st, roleIDs, userIDs, active)
		if err != nil {
			return nil, err
		}
		res = append(res, rule)
	}
	return res, rows.Err()
}

// ActiveRules returns active rules matching an event type.
func (r Repo) ActiveRules(ctx context.Context, eventType string) ([]domain.NotificationRule, error) {
	rules, err := r.ListRules(ctx, eventType)
	if err != nil {
		return nil, err
	}
	var res []domain.NotificationRule
	for _, rule := range rules {
		if rule.Active {
			res = append(res, rule)
		}
	}
	return res, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
