package repo

import (
	"context"
	"database/sql"

	"taskledger/internal/domain"
)

const userColumns = `id,email,full_name,role,active,created_at,updated_at`

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?,?)`,
		u.ID, u.Email, u.FullName, string(u.Role), boolToInt(u.Active), u.CreatedAt, u.UpdatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, email))
}

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var active int
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &active, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.Active = active != 0
	return u, nil
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		var active int
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.Active = active != 0
		res = append(res, u)
	}
	return res, rows.Err()
}
