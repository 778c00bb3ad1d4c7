package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/labmate/labmate/internal/compose"
	"github.com/labmate/labmate/internal/db/models"
	"github.com/labmate/labmate/internal/db/repos"
	"github.com/labmate/labmate/internal/events"
	"github.com/labmate/labmate/internal/logger"
	"github.com/labmate/labmate/internal/parser"
	"github.com/labmate/labmate/internal/storage"
	"github.com/labmate/labmate/internal/suggest"
	"github.com/labmate/labmate/internal/types"
)

// Compose merges screenshots back into their source document
type Compose struct {
	docs    *Document
	jobs    *repos.JobRepository
	aiJobs  *AIJob
	reports *repos.ReportRepository
	store   storage.Store
}

// NewComposeService creates a new composition service
func NewComposeService(docs *Document, jobs *repos.JobRepository, aiJobs *AIJob, reports *repos.ReportRepository, store storage.Store) *Compose {
	return &Compose{docs: docs, jobs: jobs, aiJobs: aiJobs, reports: reports, store: store}
}

// ComposeJobs builds a report from the latest Jobs of an upload. Every job
// with code must be terminal; only completed jobs contribute a screenshot.
func (s *Compose) ComposeJobs(ctx context.Context, uploadID uint) (*models.Report, error) {
	upload, err := s.docs.Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	jobs, err := s.jobs.ListByUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	var placements []compose.Placement
	for _, job := range jobs {
		if !job.Executable() {
			continue
		}
		if !job.Status.IsTerminal() {
			return nil, types.NewError(types.KindConflict, "compose report",
				fmt.Errorf("%w: task %d is %s", types.ErrNotTerminal, job.TaskIndex, job.Status))
		}
		if job.Status != models.StatusCompleted || job.Screenshot == nil {
			continue
		}
		exitCode := 0
		if job.ExitCode != nil {
			exitCode = *job.ExitCode
		}
		placements = append(placements, compose.Placement{
			ID:        job.Identifier(),
			TaskIndex: job.TaskIndex,
			Insertion: job.Insertion,
			Image:     job.Screenshot.StoragePath,
			Caption:   suggest.DefaultCaption(exitCode),
		})
	}
	return s.render(ctx, upload, nil, placements)
}

// ComposeAIJob builds a report from the settled tasks of an AI job. A task
// still running or waiting on a follow-up answer blocks composition.
func (s *Compose) ComposeAIJob(ctx context.Context, aiJobID uint) (*models.Report, error) {
	job, err := s.aiJobs.Get(ctx, aiJobID)
	if err != nil {
		return nil, err
	}
	upload, err := s.docs.Get(ctx, job.UploadID)
	if err != nil {
		return nil, err
	}

	var placements []compose.Placement
	for _, task := range job.Tasks {
		if !task.Settled() {
			return nil, types.NewError(types.KindConflict, "compose report",
				fmt.Errorf("%w: task %s is %s", types.ErrNotTerminal, task.Key, describeUnsettled(&task)))
		}
		if task.Status != models.StatusCompleted || task.Screenshot() == "" {
			continue
		}
		placements = append(placements, compose.Placement{
			ID:        task.Key,
			TaskIndex: task.TaskIndex,
			Insertion: task.ResolveInsertion(job.Insertion),
			Image:     task.Screenshot(),
			Caption:   task.Caption(),
		})
	}
	return s.render(ctx, upload, &job.ID, placements)
}

func describeUnsettled(task *models.AITask) string {
	if task.AwaitingFollowUp() {
		return "waiting for a follow-up answer"
	}
	return task.Status.String()
}

// docxContentType is the media type of word-processor reports
const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// render composes the document, stores the report and its screenshot
// appendix and records the new report version. Word-processor uploads get
// their pictures embedded in a copy of the original file; other uploads get
// a Markdown report.
func (s *Compose) render(ctx context.Context, upload *models.Upload, aiJobID *uint, placements []compose.Placement) (*models.Report, error) {
	doc, tasks, err := s.docs.Structure(ctx, upload)
	if err != nil {
		return nil, err
	}
	comp, err := compose.Compose(doc, tasks, placements)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "labmate-report-*")
	if err != nil {
		return nil, types.NewError(types.KindEnvironment, "build report", err)
	}
	defer os.RemoveAll(dir)

	shots, err := s.fetchScreenshots(ctx, comp, dir)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(upload.Filename, filepath.Ext(upload.Filename))
	filename, contentType := base+"-report.md", "text/markdown"
	var buf bytes.Buffer
	if upload.FileType == types.FileTypeDocx {
		filename, contentType = base+"-report.docx", docxContentType
		if err := s.writeDocx(ctx, &buf, upload, doc, comp, shots, dir); err != nil {
			return nil, err
		}
	} else if err := compose.WriteMarkdown(&buf, doc, comp); err != nil {
		return nil, types.NewError(types.KindComposition, "write report", err)
	}

	version := uuid.NewString()
	prefix := fmt.Sprintf("reports/upload-%d/%s", upload.ID, version)
	size := int64(buf.Len())
	reportPath, err := s.store.Put(ctx, prefix+"/"+filename, &buf, contentType)
	if err != nil {
		return nil, types.NewRetryableError(types.KindEnvironment, "store report", err)
	}

	appendixPath := ""
	if len(shots) > 0 {
		appendixPath, err = s.storeAppendix(ctx, comp, shots, filepath.Join(dir, "appendix.pdf"), prefix+"/"+base+"-screenshots.pdf")
		if err != nil {
			return nil, err
		}
	}

	report := &models.Report{
		UploadID:        upload.ID,
		AIJobID:         aiJobID,
		Source:          models.ReportSourceJobs,
		Filename:        filename,
		StoragePath:     reportPath,
		AppendixPath:    appendixPath,
		Size:            size,
		ScreenshotOrder: comp.Order,
	}
	if aiJobID != nil {
		report.Source = models.ReportSourceAIJob
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	logger.InfoWithFields("report composed", map[string]interface{}{
		"upload_id":   upload.ID,
		"report_id":   report.ID,
		"source":      report.Source,
		"format":      filepath.Ext(filename),
		"screenshots": len(comp.Order),
	})
	events.Publish(events.Event{Type: events.EventReportComposed, UploadID: upload.ID, ReportID: report.ID})
	return report, nil
}

// fetchScreenshots copies the screenshot of every injection into dir, in order
func (s *Compose) fetchScreenshots(ctx context.Context, comp *compose.Composition, dir string) ([]string, error) {
	shots := make([]string, 0, len(comp.Injections))
	for i, inj := range comp.Injections {
		// one directory per screenshot keeps equal base names apart
		shotDir := filepath.Join(dir, strconv.Itoa(i))
		if err := os.Mkdir(shotDir, 0o755); err != nil {
			return nil, types.NewError(types.KindEnvironment, "fetch screenshot", err)
		}
		local, err := storage.Fetch(ctx, s.store, inj.Image, shotDir)
		if err != nil {
			return nil, types.NewRetryableError(types.KindEnvironment, "fetch screenshot", err)
		}
		shots = append(shots, local)
	}
	return shots, nil
}

func (s *Compose) writeDocx(ctx context.Context, w *bytes.Buffer, upload *models.Upload, doc *parser.Document, comp *compose.Composition, shots []string, dir string) error {
	srcDir := filepath.Join(dir, "source")
	if err := os.Mkdir(srcDir, 0o755); err != nil {
		return types.NewError(types.KindEnvironment, "fetch document", err)
	}
	src, err := storage.Fetch(ctx, s.store, upload.StoragePath, srcDir)
	if err != nil {
		return types.NewRetryableError(types.KindEnvironment, "fetch document", err)
	}
	if err := compose.WriteDocx(w, src, doc, comp, shots); err != nil {
		return types.NewError(types.KindComposition, "write report", err)
	}
	return nil
}

func (s *Compose) storeAppendix(ctx context.Context, comp *compose.Composition, shots []string, out, key string) (string, error) {
	pages := make([]compose.AppendixPage, len(shots))
	for i, inj := range comp.Injections {
		pages[i] = compose.AppendixPage{Image: shots[i], Caption: inj.Caption}
	}
	if err := compose.WriteAppendixPDF(pages, out); err != nil {
		return "", types.NewError(types.KindComposition, "build appendix", err)
	}
	path, err := storage.PutFile(ctx, s.store, key, out, "application/pdf")
	if err != nil {
		return "", types.NewRetryableError(types.KindEnvironment, "store appendix", err)
	}
	return path, nil
}

// Reports lists every report version of an upload, oldest first
func (s *Compose) Reports(ctx context.Context, uploadID uint) ([]models.Report, error) {
	return s.reports.ListByUpload(ctx, uploadID)
}

// ReportLinks are download links for the artifacts of one report version
type ReportLinks struct {
	ReportID uint   `json:"report_id"`
	Report   string `json:"report"`
	Appendix string `json:"appendix,omitempty"`
}

// Links hands out download links for a report and its appendix
func (s *Compose) Links(ctx context.Context, reportID uint, expiry time.Duration) (*ReportLinks, error) {
	linker, ok := s.store.(storage.Linker)
	if !ok {
		return nil, types.NewError(types.KindValidation, "link report", errors.New("the artifact store cannot hand out links"))
	}
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}

	links := &ReportLinks{ReportID: report.ID}
	if links.Report, err = linker.Link(ctx, report.StoragePath, expiry); err != nil {
		return nil, types.NewRetryableError(types.KindEnvironment, "link report", err)
	}
	if report.AppendixPath != "" {
		if links.Appendix, err = linker.Link(ctx, report.AppendixPath, expiry); err != nil {
			return nil, types.NewRetryableError(types.KindEnvironment, "link appendix", err)
		}
	}
	return links, nil
}
