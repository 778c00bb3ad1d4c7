// Package constants provides centralized definitions of constants used throughout the application
package constants

// Environment variable names
const (
	// EnvLogLevel selects the logrus level
	EnvLogLevel = "LOG_LEVEL"

	// EnvDBDriver selects the database driver, sqlite or postgres
	EnvDBDriver = "LABMATE_DB_DRIVER"
	// EnvDBDSN overrides the assembled connection string
	EnvDBDSN = "LABMATE_DB_DSN"
	// EnvDBHost is the postgres host
	EnvDBHost = "DB_HOST"
	// EnvDBPort is the postgres port
	EnvDBPort = "DB_PORT"
	// EnvDBUser is the postgres user
	EnvDBUser = "DB_USER"
	// EnvDBPassword is the postgres password
	EnvDBPassword = "DB_PASSWORD"
	// EnvDBName is the postgres database name
	EnvDBName = "DB_NAME"

	// EnvArtifactBackend selects where screenshots and reports are stored: file, gcs or s3
	EnvArtifactBackend = "LABMATE_ARTIFACT_BACKEND"
	// EnvArtifactDir is the root directory of the file backend
	EnvArtifactDir = "LABMATE_ARTIFACT_DIR"
	// EnvGCSBucket is the bucket of the gcs backend
	EnvGCSBucket = "LABMATE_GCS_BUCKET"
	// EnvS3Endpoint is the endpoint of the s3 backend
	EnvS3Endpoint = "LABMATE_S3_ENDPOINT"
	// EnvS3Bucket is the bucket of the s3 backend
	EnvS3Bucket = "LABMATE_S3_BUCKET"
	// EnvS3AccessKey is the access key of the s3 backend
	EnvS3AccessKey = "LABMATE_S3_ACCESS_KEY"
	// EnvS3SecretKey is the secret key of the s3 backend
	EnvS3SecretKey = "LABMATE_S3_SECRET_KEY"
	// EnvS3UseSSL enables TLS for the s3 backend
	EnvS3UseSSL = "LABMATE_S3_USE_SSL"

	// EnvInterpreter is the command used to run submitted code
	EnvInterpreter = "LABMATE_INTERPRETER"
	// EnvExecTimeout bounds a single sandbox execution
	EnvExecTimeout = "LABMATE_EXEC_TIMEOUT"
	// EnvMaxCodeLength is the largest program the sandbox accepts
	EnvMaxCodeLength = "LABMATE_MAX_CODE_LENGTH"
	// EnvWorkDir is the scratch directory for sandbox runs
	EnvWorkDir = "LABMATE_WORK_DIR"

	// EnvSuggestConcurrency bounds parallel suggestion calls per AI job
	EnvSuggestConcurrency = "LABMATE_SUGGEST_CONCURRENCY"
	// EnvSuggestTimeout bounds a single suggestion provider call
	EnvSuggestTimeout = "LABMATE_SUGGEST_TIMEOUT"
	// EnvConfidenceThreshold enables auto-acceptance of suggestions at or above the value; negative disables it
	EnvConfidenceThreshold = "LABMATE_CONFIDENCE_THRESHOLD"
	// EnvDefaultInsertion is the insertion preference used when none is given
	EnvDefaultInsertion = "LABMATE_DEFAULT_INSERTION"

	// EnvGoogleProject is the Google Cloud project used for Vertex AI
	EnvGoogleProject = "GOOGLE_CLOUD_PROJECT"
	// EnvVertexRegion is the Vertex AI region
	EnvVertexRegion = "VERTEX_AI_REGION"
	// EnvVertexModel is the Vertex AI model name
	EnvVertexModel = "VERTEX_AI_MODEL"
)
