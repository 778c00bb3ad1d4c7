package repos

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/labmate/labmate/internal/db/models"
	"github.com/labmate/labmate/internal/types"
)

// DBRepositoryTestSuite provides a base test suite for repository tests
type DBRepositoryTestSuite struct {
	suite.Suite
	db             *gorm.DB
	ctx            context.Context
	uploadRepo     *UploadRepository
	jobRepo        *JobRepository
	screenshotRepo *ScreenshotRepository
	reportRepo     *ReportRepository
	aiJobRepo      *AIJobRepository
	aiTaskRepo     *AITaskRepository
}

func (s *DBRepositoryTestSuite) SetupTest() {
	// Create new in-memory database with JSON support
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_json=1"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err, "Failed to create in-memory database")

	// A single connection serialises writers the way one database host would
	sqlDB, err := db.DB()
	require.NoError(s.T(), err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(models.AllModels()...)
	require.NoError(s.T(), err, "Failed to run database migrations")

	s.db = db
	s.uploadRepo = NewUploadRepository(s.db)
	s.jobRepo = NewJobRepository(s.db)
	s.screenshotRepo = NewScreenshotRepository(s.db)
	s.reportRepo = NewReportRepository(s.db)
	s.aiJobRepo = NewAIJobRepository(s.db)
	s.aiTaskRepo = NewAITaskRepository(s.db)
	s.ctx = context.Background()
}

func (s *DBRepositoryTestSuite) TearDownTest() {
	sqlDB, err := s.db.DB()
	if err == nil && sqlDB != nil {
		_ = sqlDB.Close()
	}
}

// Helper methods for creating test data

func (s *DBRepositoryTestSuite) createTestUpload(jobs ...models.Job) *models.Upload {
	upload := &models.Upload{
		Filename:    "lab1.txt",
		StoragePath: "/tmp/lab1.txt",
		FileType:    types.FileTypeText,
		Size:        128,
		PageCount:   1,
		Jobs:        jobs,
	}
	s.Require().NoError(s.uploadRepo.Create(s.ctx, upload))
	return upload
}

func (s *DBRepositoryTestSuite) createTestAIJob(uploadID uint, keys ...string) *models.AIJob {
	job := &models.AIJob{
		UploadID:  uploadID,
		Theme:     types.ThemeEditor,
		Insertion: types.InsertBottomOfPage,
	}
	for i, key := range keys {
		task := models.NewAITask(key, types.TaskTypeCodeExecution, "Question "+key, "print('x')")
		task.TaskIndex = i + 1
		job.Tasks = append(job.Tasks, task)
	}
	s.Require().NoError(s.aiJobRepo.Create(s.ctx, job))
	return job
}

// TestDBRepository runs the test suite for the DBRepository to verify no panic
func TestDBRepository(t *testing.T) {
	suite.Run(t, new(DBRepositoryTestSuite))
}
