package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pickly.app/internal/access"
)

const (
	profileColumns = `id, name, description, active, created_at, updated_at`
	menuColumns    = `id, menu_key, parent_key, url, icon, title, sort_order, active, created_at, updated_at`
)

// --- profiles ---

func (s *Store) CreateProfile(ctx context.Context, p *access.Profile) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		insert into access_profiles (`+profileColumns+`)
		values (?, ?, ?, ?, ?, ?)
	`), p.ID, p.Name, p.Description, p.Active, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if isUniqueViolation(err) {
		return access.ErrConflict
	}
	return err
}

func (s *Store) UpdateProfile(ctx context.Context, p *access.Profile) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		update access_profiles set name = ?, description = ?, active = ?, updated_at = ?
		where id = ?
	`), p.Name, p.Description, p.Active, p.UpdatedAt.UTC(), p.ID)
	if err != nil {
		return err
	}
	return requireOne(res, access.ErrNotFound)
}

func (s *Store) FindProfile(ctx context.Context, id string) (*access.Profile, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`select `+profileColumns+` from access_profiles where id = ?`), id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access.ErrNotFound
	}
	return p, err
}

func (s *Store) ListProfiles(ctx context.Context) ([]*access.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `select `+profileColumns+` from access_profiles order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*access.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProfile(row rowScanner) (*access.Profile, error) {
	var p access.Profile
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// --- assignments ---

func (s *Store) UpsertAssignment(ctx context.Context, holderID, profileID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		insert into profile_assignments (holder_id, profile_id, active, created_at)
		values (?, ?, TRUE, ?)
		on conflict (holder_id, profile_id) do update
		set active = TRUE, deactivated_at = NULL
	`), holderID, profileID, at.UTC())
	if isForeignKeyViolation(err) {
		return access.ErrNotFound
	}
	return err
}

func (s *Store) DeactivateAssignment(ctx context.Context, holderID, profileID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		update profile_assignments set active = FALSE, deactivated_at = ?
		where holder_id = ? and profile_id = ? and active = TRUE
	`), at.UTC(), holderID, profileID)
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil || n > 0 {
		return err
	}
	var one int
	err = s.db.QueryRowContext(ctx, s.rebind(`
		select 1 from profile_assignments where holder_id = ? and profile_id = ?
	`), holderID, profileID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return access.ErrNotFound
	}
	return err
}

func (s *Store) ActiveProfileIDs(ctx context.Context, holderID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		select a.profile_id
		from profile_assignments a
		join access_profiles p on p.id = a.profile_id
		where a.holder_id = ? and a.active = TRUE and p.active = TRUE
		order by a.profile_id
	`), holderID)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

// --- menus ---

func (s *Store) CreateMenu(ctx context.Context, m *access.MenuNode) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		insert into menu_nodes (`+menuColumns+`)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), m.ID, m.Key, m.ParentKey, m.URL, m.Icon, m.Title, m.Order, m.Active, m.CreatedAt.UTC(), m.UpdatedAt.UTC())
	if isUniqueViolation(err) {
		return access.ErrConflict
	}
	return err
}

func (s *Store) UpdateMenu(ctx context.Context, m *access.MenuNode) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		update menu_nodes
		set menu_key = ?, parent_key = ?, url = ?, icon = ?, title = ?, sort_order = ?, active = ?, updated_at = ?
		where id = ?
	`), m.Key, m.ParentKey, m.URL, m.Icon, m.Title, m.Order, m.Active, m.UpdatedAt.UTC(), m.ID)
	if isUniqueViolation(err) {
		return access.ErrConflict
	}
	if err != nil {
		return err
	}
	return requireOne(res, access.ErrNotFound)
}

func (s *Store) FindMenu(ctx context.Context, id string) (*access.MenuNode, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`select `+menuColumns+` from menu_nodes where id = ?`), id)
	m, err := scanMenu(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access.ErrNotFound
	}
	return m, err
}

func (s *Store) FindMenuByKey(ctx context.Context, key string) (*access.MenuNode, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`select `+menuColumns+` from menu_nodes where menu_key = ?`), key)
	m, err := scanMenu(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access.ErrNotFound
	}
	return m, err
}

func (s *Store) ListMenus(ctx context.Context) ([]*access.MenuNode, error) {
	rows, err := s.db.QueryContext(ctx, `select `+menuColumns+` from menu_nodes order by sort_order, menu_key`)
	if err != nil {
		return nil, err
	}
	return scanMenus(rows)
}

func (s *Store) MenusByKeys(ctx context.Context, keys []string) ([]*access.MenuNode, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		select `+menuColumns+` from menu_nodes
		where active = TRUE and menu_key in (`+placeholders(len(keys))+`)
		order by sort_order, menu_key
	`), args...)
	if err != nil {
		return nil, err
	}
	return scanMenus(rows)
}

func scanMenu(row rowScanner) (*access.MenuNode, error) {
	var m access.MenuNode
	err := row.Scan(&m.ID, &m.Key, &m.ParentKey, &m.URL, &m.Icon, &m.Title, &m.Order, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}

func scanMenus(rows *sql.Rows) ([]*access.MenuNode, error) {
	defer rows.Close()
	var out []*access.MenuNode
	for rows.Next() {
		m, err := scanMenu(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- grants ---

// ReplaceGrants runs in one transaction so readers never see a half-applied
// grant set.
func (s *Store) ReplaceGrants(ctx context.Context, profileID string, menuIDs []string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	at = at.UTC()
	q := `update profile_menu_grants set active = FALSE, deactivated_at = ?
		where profile_id = ? and active = TRUE`
	args := []any{at, profileID}
	if len(menuIDs) > 0 {
		q += ` and menu_id not in (` + placeholders(len(menuIDs)) + `)`
		for _, id := range menuIDs {
			args = append(args, id)
		}
	}
	if _, err := tx.ExecContext(ctx, s.rebind(q), args...); err != nil {
		return err
	}

	upsert := s.rebind(`
		insert into profile_menu_grants (profile_id, menu_id, active, created_at)
		values (?, ?, TRUE, ?)
		on conflict (profile_id, menu_id) do update
		set active = TRUE, deactivated_at = NULL
	`)
	for _, id := range menuIDs {
		if _, err := tx.ExecContext(ctx, upsert, profileID, id, at); err != nil {
			if isForeignKeyViolation(err) {
				return access.ErrNotFound
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GrantedMenuKeys(ctx context.Context, profileIDs []string) ([]string, error) {
	if len(profileIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(profileIDs))
	for i, id := range profileIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		select distinct m.menu_key
		from profile_menu_grants g
		join menu_nodes m on m.id = g.menu_id
		where g.active = TRUE and m.active = TRUE and g.profile_id in (`+placeholders(len(profileIDs))+`)
		order by m.menu_key
	`), args...)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (s *Store) GrantedMenus(ctx context.Context, profileID string) ([]*access.MenuNode, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		select m.id, m.menu_key, m.parent_key, m.url, m.icon, m.title, m.sort_order, m.active, m.created_at, m.updated_at
		from profile_menu_grants g
		join menu_nodes m on m.id = g.menu_id
		where g.profile_id = ? and g.active = TRUE
		order by m.sort_order, m.menu_key
	`), profileID)
	if err != nil {
		return nil, err
	}
	return scanMenus(rows)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
