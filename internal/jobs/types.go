package jobs

import (
	"context"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeFixDuplicates repairs duplicate entity links on a tenant's
	// flagged transactions.
	JobTypeFixDuplicates JobType = "fix_duplicates"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
)

// FixDuplicatesJob repairs duplicate entity links across a tenant's
// transactions. When TransactionIDs is empty the worker re-analyzes the
// tenant and fixes everything currently flagged.
type FixDuplicatesJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// TenantID scopes the fix to one organization.
	TenantID string `json:"tenant_id"`

	// TransactionIDs optionally restricts the fix to specific
	// transactions from a prior analyze run.
	TransactionIDs []string `json:"transaction_ids,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// FixedCount is the number of transactions actually repaired.
	// Partial success shows up here when some writes fail.
	FixedCount int `json:"fixed_count"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *FixDuplicatesJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *FixDuplicatesJob) GetType() JobType {
	return JobTypeFixDuplicates
}

// GetStatus implements the Job interface.
func (j *FixDuplicatesJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishFixDuplicates publishes a duplicate-repair job.
	PublishFixDuplicates(ctx context.Context, job *FixDuplicatesJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *FixDuplicatesJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*FixDuplicatesJob, error)

	// ListJobs retrieves jobs with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*FixDuplicatesJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// TenantID filters jobs by tenant.
	TenantID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
