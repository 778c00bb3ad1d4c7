package services

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labmate/labmate/internal/db/models"
	"github.com/labmate/labmate/internal/types"
)

func (s *ServiceTestSuite) TestIngestCreatesOneJobPerTask() {
	upload, err := s.documents.Ingest(s.ctx, s.writeLab("lab3.txt", twoTaskLab), IngestOptions{Language: "python"})
	s.Require().NoError(err)
	s.Equal(types.FileTypeText, upload.FileType)
	s.Equal("lab3.txt", upload.Filename)
	s.Equal(twoTaskLab, s.readStored(upload.StoragePath))

	jobs, err := s.jobs.ListByUpload(s.ctx, upload.ID)
	s.Require().NoError(err)
	s.Require().Len(jobs, 2)
	s.Equal(1, jobs[0].TaskIndex)
	s.Equal("print(\"hello\")", jobs[0].Code)
	s.Equal(types.ThemePlain, jobs[0].Theme)
	s.Equal(types.InsertBelowQuestion, jobs[0].Insertion)
	s.False(jobs[1].Executable())

	doc, tasks, err := s.documents.Structure(s.ctx, upload)
	s.Require().NoError(err)
	s.Len(tasks, 2)
	s.Equal(1, doc.PageCount())
	s.Equal(1, upload.PageCount)
}

func (s *ServiceTestSuite) TestIngestRejectsUnsupportedFile() {
	_, err := s.documents.Ingest(s.ctx, s.writeLab("lab.xlsx", "1. a"), IngestOptions{})
	s.Require().Error(err)
	s.True(errors.Is(err, types.ErrUnsupportedFile))

	uploads, err := s.documents.List(s.ctx, &models.ListOptions{Limit: 10})
	s.Require().NoError(err)
	s.Empty(uploads)
}

func (s *ServiceTestSuite) TestRunUploadCompletesExecutableJobs() {
	uploadID := s.ingest(twoTaskLab)

	jobs, err := s.jobs.RunUpload(s.ctx, uploadID)
	s.Require().NoError(err)
	s.Require().Len(jobs, 2)
	s.Equal([]string{"print(\"hello\")"}, s.runner.executed())

	done, err := s.jobs.Get(s.ctx, jobs[0].ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, done.Status)
	s.Equal("hello\n", done.Output)
	s.Require().NotNil(done.ExitCode)
	s.Equal(0, *done.ExitCode)
	s.Require().NotNil(done.Screenshot)
	s.Equal(40, done.Screenshot.Width)
	s.NotEmpty(s.readStored(done.Screenshot.StoragePath))

	untouched, err := s.jobs.Get(s.ctx, jobs[1].ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, untouched.Status)

	// a second pass has nothing left to run
	_, err = s.jobs.RunUpload(s.ctx, uploadID)
	s.Require().NoError(err)
	s.Len(s.runner.executed(), 1)
}

func (s *ServiceTestSuite) TestTimedOutJobFailsWithoutScreenshot() {
	timeout := types.NewRetryableError(types.KindEnvironment, "run", fmt.Errorf("%w after 30s", types.ErrTimeout))
	s.runner.fail["print(\"hello\")"] = timeout
	uploadID := s.ingest(twoTaskLab)

	jobs, err := s.jobs.RunUpload(s.ctx, uploadID)
	s.Require().NoError(err)

	failed, err := s.jobs.Get(s.ctx, jobs[0].ID)
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, failed.Status)
	s.Contains(failed.Error, "timed out")
	s.Nil(failed.Screenshot)
	s.Nil(failed.ExitCode)
	s.Empty(failed.Output)

	report, err := s.composer.ComposeJobs(s.ctx, uploadID)
	s.Require().NoError(err)
	s.Empty(report.ScreenshotOrder)
	s.Empty(report.AppendixPath)
	s.Equal(twoTaskLab, s.readStored(report.StoragePath))
}

func (s *ServiceTestSuite) TestRunRejectsBusyAndFinishedJobs() {
	uploadID := s.ingest(twoTaskLab)
	jobs, err := s.jobs.ListByUpload(s.ctx, uploadID)
	s.Require().NoError(err)

	job := jobs[0]
	job.Status = models.StatusRunning
	s.Require().NoError(s.jobRepo.Transition(s.ctx, &job, models.StatusPending))

	_, err = s.jobs.Run(s.ctx, job.ID)
	s.Require().Error(err)
	s.True(errors.Is(err, types.ErrTaskBusy))
	s.Equal(types.KindConflict, types.KindOf(err))
	s.Empty(s.runner.executed())

	_, err = s.jobs.Rerun(s.ctx, job.ID)
	s.True(errors.Is(err, types.ErrNotTerminal))

	_, err = s.jobs.Run(s.ctx, jobs[1].ID)
	s.True(errors.Is(err, types.ErrNoCode))
}

func (s *ServiceTestSuite) TestRerunCreatesNewAttempt() {
	s.runner.fail["print(\"hello\")"] = types.NewError(types.KindEnvironment, "run", errors.New("interpreter missing"))
	uploadID := s.ingest(twoTaskLab)
	jobs, err := s.jobs.RunUpload(s.ctx, uploadID)
	s.Require().NoError(err)
	first := jobs[0]

	_, err = s.jobs.Run(s.ctx, first.ID)
	s.True(errors.Is(err, types.ErrInvalidTransition))

	delete(s.runner.fail, "print(\"hello\")")
	next, err := s.jobs.Rerun(s.ctx, first.ID)
	s.Require().NoError(err)
	s.Equal(2, next.Attempt)
	s.Require().NotNil(next.PreviousID)
	s.Equal(first.ID, *next.PreviousID)
	s.Equal(models.StatusCompleted, next.Status)

	prev, err := s.jobs.Get(s.ctx, first.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, prev.Status)

	latest, err := s.jobs.ListByUpload(s.ctx, uploadID)
	s.Require().NoError(err)
	s.Equal(next.ID, latest[0].ID)
}

func (s *ServiceTestSuite) TestComposeJobsInjectsCompletedScreenshots() {
	uploadID := s.ingest(twoTaskLab)
	jobs, err := s.jobs.RunUpload(s.ctx, uploadID)
	s.Require().NoError(err)

	report, err := s.composer.ComposeJobs(s.ctx, uploadID)
	s.Require().NoError(err)
	s.Equal(models.ReportSourceJobs, report.Source)
	s.Equal([]string{jobs[0].Identifier()}, report.ScreenshotOrder)
	s.Equal("lab3-report.md", report.Filename)
	s.NotEmpty(report.AppendixPath)

	content := s.readStored(report.StoragePath)
	s.Contains(content, "1. Print a greeting\n![Code execution successful with exit code 0](")
	s.Equal(twoTaskLab, stripImages(content))
	s.Equal(int64(len(content)), report.Size)

	// composing again yields a new version with the same order
	again, err := s.composer.ComposeJobs(s.ctx, uploadID)
	s.Require().NoError(err)
	s.NotEqual(report.ID, again.ID)
	s.Equal(report.ScreenshotOrder, again.ScreenshotOrder)
	s.Equal(content, s.readStored(again.StoragePath))

	reports, err := s.composer.Reports(s.ctx, uploadID)
	s.Require().NoError(err)
	s.Len(reports, 2)

	links, err := s.composer.Links(s.ctx, report.ID, time.Hour)
	s.Require().NoError(err)
	s.True(strings.HasPrefix(links.Report, "file://"))
	s.True(strings.HasSuffix(links.Appendix, "lab3-screenshots.pdf"))
}

func (s *ServiceTestSuite) TestComposeJobsEmbedsIntoDocx() {
	path := filepath.Join(s.T().TempDir(), "lab5.docx")
	f, err := os.Create(path)
	s.Require().NoError(err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	s.Require().NoError(err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>1.Add two numbers</w:t></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="SourceCode"/></w:pPr><w:r><w:t>print(1 + 2)</w:t></w:r></w:p>
<w:p><w:r><w:t>2.Explain the result</w:t></w:r></w:p>
</w:body></w:document>`))
	s.Require().NoError(err)
	s.Require().NoError(zw.Close())
	s.Require().NoError(f.Close())

	upload, err := s.documents.Ingest(s.ctx, path, IngestOptions{})
	s.Require().NoError(err)
	s.Equal(types.FileTypeDocx, upload.FileType)
	jobs, err := s.jobs.RunUpload(s.ctx, upload.ID)
	s.Require().NoError(err)
	s.Equal([]string{"print(1 + 2)"}, s.runner.executed())

	report, err := s.composer.ComposeJobs(s.ctx, upload.ID)
	s.Require().NoError(err)
	s.Equal("lab5-report.docx", report.Filename)
	s.Equal([]string{jobs[0].Identifier()}, report.ScreenshotOrder)
	s.NotEmpty(report.AppendixPath)

	content := s.readStored(report.StoragePath)
	s.Equal(int64(len(content)), report.Size)
	zr, err := zip.NewReader(strings.NewReader(content), int64(len(content)))
	s.Require().NoError(err)
	var body string
	var media int
	for _, zf := range zr.File {
		if strings.HasPrefix(zf.Name, "word/media/") {
			media++
		}
		if zf.Name != "word/document.xml" {
			continue
		}
		rc, err := zf.Open()
		s.Require().NoError(err)
		b, err := io.ReadAll(rc)
		s.Require().NoError(err)
		rc.Close()
		body = string(b)
	}
	s.Equal(1, media)
	shot := strings.Index(body, "r:embed=")
	s.Greater(shot, strings.Index(body, "1.Add two numbers"))
	s.Less(shot, strings.Index(body, "print(1 + 2)"))
	s.Contains(body, "Code execution successful with exit code 0")
}

func (s *ServiceTestSuite) TestComposeJobsRequiresTerminalJobs() {
	uploadID := s.ingest(twoTaskLab)
	_, err := s.composer.ComposeJobs(s.ctx, uploadID)
	s.Require().Error(err)
	s.True(errors.Is(err, types.ErrNotTerminal))
}

func (s *ServiceTestSuite) TestDeleteUploadRemovesJobs() {
	uploadID := s.ingest(twoTaskLab)
	s.Require().NoError(s.documents.Delete(s.ctx, uploadID))

	_, err := s.documents.Get(s.ctx, uploadID)
	s.Equal(types.KindNotFound, types.KindOf(err))
	jobs, err := s.jobs.ListByUpload(s.ctx, uploadID)
	s.Require().NoError(err)
	s.Empty(jobs)
}
