package constants

// JobStatus is the lifecycle status of a registry job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"    // accepted, waiting for a worker
	JobStatusProcessing JobStatus = "PROCESSING" // pipeline running
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED" // terminal failure
)

// Done reports whether the job reached a terminal status.
func (s JobStatus) Done() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// PipelineStatus is the status carried by a single pipeline run.
type PipelineStatus string

const (
	PipelineProcessing PipelineStatus = "PROCESSING"
	PipelineCompleted  PipelineStatus = "COMPLETED"
	PipelineFailed     PipelineStatus = "FAILED"
)

// Stage names one step of the pipeline. Stages are ordered.
type Stage string

const (
	StageIngestion   Stage = "ingestion"
	StageExtraction  Stage = "extraction"
	StageCleaning    Stage = "cleaning"
	StageStructuring Stage = "structuring"
)

var stageOrder = map[Stage]int{
	StageIngestion:   1,
	StageExtraction:  2,
	StageCleaning:    3,
	StageStructuring: 4,
}

// Stages returns the fixed execution order.
func Stages() []Stage {
	return []Stage{StageIngestion, StageExtraction, StageCleaning, StageStructuring}
}

// Ordinal returns the 1-based position of s, or 0 for unknown stages.
func (s Stage) Ordinal() int {
	return stageOrder[s]
}
