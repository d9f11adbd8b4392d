// Package app wires the pieces together: workspace, database, config,
// migrations, seed users, and the notification dispatcher. Both the CLI
// and the server boot through here.
package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"taskledger/internal/config"
	"taskledger/internal/db"
	"taskledger/internal/domain"
	"taskledger/internal/engine"
	"taskledger/internal/migrate"
	"taskledger/internal/notify"
	"taskledger/internal/repo"
)

type App struct {
	Workspace  string
	DB         *sql.DB
	Repo       repo.Repo
	Engine     engine.Engine
	Config     *config.Config
	Dispatcher *notify.WebhookDispatcher
}

// Load opens the workspace database, runs migrations, seeds configured
// users, and starts the webhook dispatcher if any hooks are configured.
func Load(ctx context.Context, workspace string) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	a := &App{
		Workspace: workspace,
		DB:        conn,
		Repo:      repo.Repo{DB: conn},
		Engine:    engine.New(conn),
		Config:    cfg,
	}
	if err := a.seedUsers(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	if d := notify.StartWebhookDispatcher(cfg.Webhooks); d != nil {
		a.Dispatcher = d
		a.Engine.Notifier = d
	}
	return a, nil
}

func (a *App) Close() error {
	if a.Dispatcher != nil {
		a.Dispatcher.Close()
	}
	return a.DB.Close()
}

// seedUsers inserts configured users that do not exist yet. Existing rows
// are left alone so local edits survive restarts.
func (a *App) seedUsers(ctx context.Context) error {
	for _, s := range a.Config.SeedUsers {
		_, err := a.Repo.GetUserByEmail(ctx, s.Email)
		if err == nil {
			continue
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		id := s.ID
		if id == "" {
			id = uuid.New().String()
		}
		role := domain.Role(s.Role)
		if role == "" {
			role = domain.RoleCustomer
		}
		now := time.Now().UTC().Format(time.RFC3339)
		u := domain.User{
			ID:        id,
			Email:     s.Email,
			FullName:  s.FullName,
			Role:      role,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := a.Repo.InsertUser(ctx, u); err != nil {
			return err
		}
	}
	return nil
}
