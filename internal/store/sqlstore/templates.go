package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"efiling.org/internal/filing"
	"efiling.org/internal/store"
)

const templateColumns = `id, name, description, type, version, file_url, original_filename, file_extension, download_count, created_at`

func scanTemplate(row scanner) (filing.Template, error) {
	var t filing.Template
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Type, &t.Version, &t.FileURL,
		&t.OriginalFilename, &t.FileExtension, &t.DownloadCount, &t.CreatedAt)
	t.CreatedAt = t.CreatedAt.UTC()
	return t, err
}

func (s *Store) CreateTemplate(ctx context.Context, t filing.Template) (filing.Template, error) {
	t.CreatedAt = store.Stamp(t.CreatedAt)
	_, err := s.db.ExecContext(ctx, s.q(`
		insert into templates (`+templateColumns+`)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), t.ID, t.Name, t.Description, t.Type, t.Version, t.FileURL, t.OriginalFilename, t.FileExtension, t.DownloadCount, t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return filing.Template{}, store.ErrDuplicate
		}
		return filing.Template{}, err
	}
	return t, nil
}

func (s *Store) Template(ctx context.Context, id string) (filing.Template, error) {
	t, err := scanTemplate(s.db.QueryRowContext(ctx, s.q(`select `+templateColumns+` from templates where id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return filing.Template{}, store.ErrNotFound
	}
	return t, err
}

func (s *Store) ListTemplates(ctx context.Context) ([]filing.Template, error) {
	rows, err := s.db.QueryContext(ctx, `select `+templateColumns+` from templates order by created_at desc, id desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []filing.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`delete from templates where id = ?`), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RecordDownload(ctx context.Context, id string) (filing.Template, error) {
	res, err := s.db.ExecContext(ctx, s.q(`update templates set download_count = download_count + 1 where id = ?`), id)
	if err != nil {
		return filing.Template{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return filing.Template{}, store.ErrNotFound
	}
	return s.Template(ctx, id)
}
