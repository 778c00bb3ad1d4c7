package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gorm.io/gorm"

	"github.com/labmate/labmate/config"
	"github.com/labmate/labmate/internal/db"
	"github.com/labmate/labmate/internal/db/repos"
	"github.com/labmate/labmate/internal/logger"
	"github.com/labmate/labmate/internal/sandbox"
	"github.com/labmate/labmate/internal/services"
	"github.com/labmate/labmate/internal/storage"
	"github.com/labmate/labmate/internal/suggest"
)

// App holds the services a command works with
type App struct {
	DB        *gorm.DB
	Store     storage.Store
	Documents *services.Document
	Jobs      *services.Job
	AITasks   *services.AITask
	AIJobs    *services.AIJob
	Composer  *services.Compose

	closers []io.Closer
}

// NewApp connects to the database and artifact store and wires the services
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	conn, err := db.New(db.Options{
		Driver:   cfg.DB.Driver,
		DSN:      cfg.DB.DSN,
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		DBName:   cfg.DB.Name,
	})
	if err != nil {
		return nil, err
	}
	app := &App{DB: conn}
	if sqlDB, err := conn.DB(); err == nil {
		app.closers = append(app.closers, sqlDB)
	}

	store, err := storage.New(ctx, cfg.Artifacts)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}
	app.Store = store
	if c, ok := store.(io.Closer); ok {
		app.closers = append(app.closers, c)
	}

	sb, err := sandbox.New(sandbox.Config{
		Interpreter:   cfg.Sandbox.Interpreter,
		Timeout:       cfg.Sandbox.Timeout,
		MaxCodeLength: cfg.Sandbox.MaxCodeLength,
		WorkDir:       cfg.Sandbox.WorkDir,
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	runner := sandbox.NewQueue(sb)

	var provider suggest.Provider = suggest.NewStatic()
	if cfg.Suggest.Project != "" {
		vertex, err := suggest.NewVertex(ctx, suggest.VertexConfig{
			Project: cfg.Suggest.Project,
			Region:  cfg.Suggest.Region,
			Model:   cfg.Suggest.Model,
			Timeout: cfg.Suggest.Timeout,
		})
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.closers = append(app.closers, vertex)
		provider = vertex
	} else {
		logger.Debug("no Google Cloud project configured, using the static suggestion provider")
	}

	uploads := repos.NewUploadRepository(conn)
	jobs := repos.NewJobRepository(conn)
	aiJobs := repos.NewAIJobRepository(conn)
	aiTasks := repos.NewAITaskRepository(conn)
	reports := repos.NewReportRepository(conn)

	app.Documents = services.NewDocumentService(uploads, store, cfg.DefaultInsertion)
	app.Jobs = services.NewJobService(jobs, runner, store)
	app.AITasks = services.NewAITaskService(aiTasks, provider, runner, store, cfg.Suggest.ConfidenceThreshold)
	app.AIJobs = services.NewAIJobService(aiJobs, aiTasks, app.Documents, app.AITasks, provider, cfg.Suggest.Concurrency)
	app.Composer = services.NewComposeService(app.Documents, jobs, app.AIJobs, reports, store)
	return app, nil
}

// Close releases every resource opened by NewApp, newest first
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
