package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"efiling.org/internal/auth"
	"efiling.org/internal/store"
)

const userColumns = `id, nstin, name, email, phone, role, password_hash, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (store.UserRecord, error) {
	var (
		u    store.UserRecord
		role string
	)
	if err := row.Scan(&u.ID, &u.NSTIN, &u.Name, &u.Email, &u.Phone, &role, &u.PasswordHash, &u.CreatedAt); err != nil {
		return store.UserRecord{}, err
	}
	u.Role = auth.Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u store.UserRecord) (auth.User, error) {
	u.CreatedAt = store.Stamp(u.CreatedAt)
	_, err := s.db.ExecContext(ctx, s.q(`
		insert into users (id, nstin, name, email, phone, role, password_hash, created_at)
		values (?, ?, ?, ?, ?, ?, ?, ?)
	`), u.ID, u.NSTIN, u.Name, u.Email, u.Phone, string(u.Role), u.PasswordHash, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.User{}, store.ErrDuplicate
		}
		return auth.User{}, err
	}
	return u.User, nil
}

func (s *Store) UserByID(ctx context.Context, id string) (store.UserRecord, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, s.q(`select `+userColumns+` from users where id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return store.UserRecord{}, store.ErrNotFound
	}
	return u, err
}

func (s *Store) UserByNSTIN(ctx context.Context, nstin string) (store.UserRecord, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, s.q(`select `+userColumns+` from users where upper(nstin) = upper(?)`), nstin))
	if errors.Is(err, sql.ErrNoRows) {
		return store.UserRecord{}, store.ErrNotFound
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context, search string, offset, limit int) ([]auth.User, int, error) {
	where := ``
	var args []any
	if search != "" {
		where = ` where lower(name) like ? escape '\' or lower(nstin) like ? escape '\' or lower(email) like ? escape '\'`
		p := escapeLike(search)
		args = append(args, p, p, p)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, s.q(`select count(*) from users`+where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = total
	}
	rows, err := s.db.QueryContext(ctx, s.q(`select `+userColumns+` from users`+where+
		` order by created_at desc, id desc limit ? offset ?`), append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []auth.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u.User)
	}
	return out, total, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, u auth.User, passwordHash string) (auth.User, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		update users set nstin = ?, name = ?, email = ?, phone = ?, role = ?,
			password_hash = case when ? = '' then password_hash else ? end
		where id = ?
	`), u.NSTIN, u.Name, u.Email, u.Phone, string(u.Role), passwordHash, passwordHash, u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.User{}, store.ErrDuplicate
		}
		return auth.User{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.User{}, store.ErrNotFound
	}
	rec, err := s.UserByID(ctx, u.ID)
	if err != nil {
		return auth.User{}, err
	}
	return rec.User, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`delete from users where id = ?`), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}
