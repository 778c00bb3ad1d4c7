package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/labmate/labmate/internal/db/models"
	"github.com/labmate/labmate/internal/db/repos"
	"github.com/labmate/labmate/internal/extract"
	"github.com/labmate/labmate/internal/logger"
	"github.com/labmate/labmate/internal/parser"
	"github.com/labmate/labmate/internal/storage"
	"github.com/labmate/labmate/internal/types"
)

// IngestOptions are the per-document execution preferences
type IngestOptions struct {
	Theme types.Theme
	// Language picks the theme when Theme is empty
	Language  string
	Insertion types.InsertionPoint
}

// Document ingests uploaded files and recovers their structure
type Document struct {
	uploads          *repos.UploadRepository
	store            storage.Store
	defaultInsertion types.InsertionPoint
}

// NewDocumentService creates a new document service
func NewDocumentService(uploads *repos.UploadRepository, store storage.Store, defaultInsertion types.InsertionPoint) *Document {
	if defaultInsertion == "" {
		defaultInsertion = types.InsertBelowQuestion
	}
	return &Document{uploads: uploads, store: store, defaultInsertion: defaultInsertion}
}

// Ingest parses the file at path, stores it and creates one Job per extracted
// task. Parse errors abort the whole document.
func (s *Document) Ingest(ctx context.Context, path string, opts IngestOptions) (*models.Upload, error) {
	doc, fileType, err := parser.ParseFile(ctx, path)
	if err != nil {
		return nil, err
	}
	res := extract.Extract(doc)

	info, err := os.Stat(path)
	if err != nil {
		return nil, types.NewError(types.KindParse, "ingest document", err)
	}

	theme := opts.Theme
	if theme == "" {
		theme = types.ThemeForLanguage(opts.Language)
	}
	insertion := opts.Insertion
	if insertion == "" {
		insertion = s.defaultInsertion
	}

	filename := filepath.Base(path)
	key := fmt.Sprintf("uploads/%s/%s", uuid.NewString(), filename)
	storagePath, err := storage.PutFile(ctx, s.store, key, path, storage.ContentTypeFor(filename))
	if err != nil {
		return nil, types.NewRetryableError(types.KindEnvironment, "store document", err)
	}

	upload := &models.Upload{
		Filename:      filename,
		StoragePath:   storagePath,
		FileType:      fileType,
		Size:          info.Size(),
		PageCount:     doc.PageCount(),
		NonSequential: res.NonSequential,
	}
	for _, t := range res.Tasks {
		upload.Jobs = append(upload.Jobs, models.Job{
			TaskIndex:          t.Index,
			RawNumber:          t.RawNumber,
			Section:            t.Section,
			Question:           t.Question,
			Code:               t.Code,
			RequiresScreenshot: t.RequiresScreenshot,
			Theme:              theme,
			Insertion:          insertion,
		})
	}
	if err := s.uploads.Create(ctx, upload); err != nil {
		return nil, fmt.Errorf("failed to create upload: %w", err)
	}

	logger.InfoWithFields("document ingested", map[string]interface{}{
		"upload_id":      upload.ID,
		"filename":       filename,
		"tasks":          len(res.Tasks),
		"non_sequential": res.NonSequential,
	})
	return upload, nil
}

// Structure re-parses the stored document of upload
func (s *Document) Structure(ctx context.Context, upload *models.Upload) (*parser.Document, []extract.Task, error) {
	dir, err := os.MkdirTemp("", "labmate-doc-*")
	if err != nil {
		return nil, nil, types.NewError(types.KindEnvironment, "fetch document", err)
	}
	defer os.RemoveAll(dir)

	local, err := storage.Fetch(ctx, s.store, upload.StoragePath, dir)
	if err != nil {
		return nil, nil, types.NewRetryableError(types.KindEnvironment, "fetch document", err)
	}
	p, err := parser.ForType(upload.FileType)
	if err != nil {
		return nil, nil, err
	}
	doc, err := p.Parse(ctx, local)
	if err != nil {
		return nil, nil, err
	}
	return doc, extract.Extract(doc).Tasks, nil
}

// Get retrieves an upload by ID
func (s *Document) Get(ctx context.Context, id uint) (*models.Upload, error) {
	return s.uploads.GetByID(ctx, id)
}

// List retrieves uploads with pagination
func (s *Document) List(ctx context.Context, opts *models.ListOptions) ([]models.Upload, error) {
	return s.uploads.List(ctx, opts)
}

// Delete removes an upload with all of its records
func (s *Document) Delete(ctx context.Context, id uint) error {
	if err := s.uploads.Delete(ctx, id); err != nil {
		return err
	}
	logger.InfoWithFields("upload deleted", map[string]interface{}{"upload_id": id})
	return nil
}
