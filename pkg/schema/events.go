// pkg/schema/events.go
package schema

// RunRequested asks a worker to produce and publish one reel.
type RunRequested struct {
	ID              string      `json:"id"`
	Prompt          string      `json:"prompt,omitempty"`
	Scenes          []string    `json:"scenes,omitempty"`
	VoiceoverScript string      `json:"voiceover_script,omitempty"`
	PostText        string      `json:"post_text,omitempty"`
	TaskID          string      `json:"task_id,omitempty"`
	DevMode         bool        `json:"dev_mode,omitempty"`
	ScheduledTime   string      `json:"scheduled_time,omitempty"`
	Targets         []RunTarget `json:"targets,omitempty"`
	HappenedAt      int64       `json:"happened_at"`
}

type RunTarget struct {
	Platform  string `json:"platform"`
	PageID    string `json:"page_id,omitempty"`
	AccountID string `json:"account_id,omitempty"`
}

type Stage string

const (
	StageGeneratingContent Stage = "generating_content"
	StageAwaitingRender    Stage = "awaiting_render"
	StagePostProducing     Stage = "post_producing"
	StagePublishing        Stage = "publishing"
	StageDone              Stage = "done"
	StageFailed            Stage = "failed"
)

type FailureType string

const (
	FailureTypeRetryable  FailureType = "retryable"
	FailureTypePermanent  FailureType = "permanent"
	FailureTypeValidation FailureType = "validation"
)

// StageEvent is emitted each time a run enters a stage or fails in one.
type StageEvent struct {
	RunID       string      `json:"run_id"`
	Stage       Stage       `json:"stage"`
	FailedStage Stage       `json:"failed_stage,omitempty"`
	StageStart  int64       `json:"stage_start,omitempty"`
	StageEnd    int64       `json:"stage_end,omitempty"`
	Error       string      `json:"error,omitempty"`
	FailureType FailureType `json:"failure_type,omitempty"`
	HappenedAt  int64       `json:"happened_at"`
}

type TargetResult struct {
	Platform      string `json:"platform"`
	DestinationID string `json:"destination_id,omitempty"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	Attempts      int    `json:"attempts"`
	Deduplicated  bool   `json:"deduplicated,omitempty"`
	SubmissionID  string `json:"submission_id,omitempty"`
}

// RunDone summarizes a finished run, successful or not.
type RunDone struct {
	ID                string         `json:"id"`
	Stage             Stage          `json:"stage"`
	FailedStage       Stage          `json:"failed_stage,omitempty"`
	DevMode           bool           `json:"dev_mode,omitempty"`
	LastJobID         string         `json:"last_job_id,omitempty"`
	SegmentsCompleted int            `json:"segments_completed"`
	SegmentsTotal     int            `json:"segments_total"`
	Partial           bool           `json:"partial,omitempty"`
	ArtifactPath      string         `json:"artifact_path,omitempty"`
	HostedURL         string         `json:"hosted_url,omitempty"`
	Targets           []TargetResult `json:"targets,omitempty"`
	Lifecycle         []StageEvent   `json:"lifecycle,omitempty"`
	ProcessingTimeMs  int64          `json:"processing_time_ms"`
	Error             string         `json:"error,omitempty"`
	FailureType       FailureType    `json:"failure_type,omitempty"`
	HappenedAt        int64          `json:"happened_at"`
}
