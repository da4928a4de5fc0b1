package contract

import "time"

const SchemaVersion = "v1"

type ErrorCode string

const (
	ErrGeneric          ErrorCode = "GENERIC_FAILURE"
	ErrInvalidUsage     ErrorCode = "INVALID_USAGE"
	ErrNotFound         ErrorCode = "NOT_FOUND"
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
)

type ErrorEnvelope struct {
	SchemaVersion string         `json:"schema_version"`
	Error         ErrorBody      `json:"error"`
	Meta          map[string]any `json:"meta,omitempty"`
}

type ErrorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Hint    string    `json:"hint,omitempty"`
}

type SuccessEnvelope struct {
	SchemaVersion string         `json:"schema_version"`
	Command       string         `json:"command"`
	GeneratedAt   time.Time      `json:"generated_at"`
	Data          any            `json:"data"`
	Meta          map[string]any `json:"meta"`
	Warnings      []string       `json:"warnings"`
}

// TaskDraft holds the raw, user-supplied fields of a task. Dates and clock
// times stay as strings: interpreting them is the layout engine's job, and
// malformed values must survive storage so they can be surfaced later.
type TaskDraft struct {
	Title       string `json:"title" yaml:"title"`
	ClientName  string `json:"client_name" yaml:"client_name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	OwnerID     string `json:"owner_id" yaml:"owner_id"`
	ExactDate   string `json:"exact_date,omitempty" yaml:"exact_date,omitempty"`
	StartDate   string `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	StartTime   string `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	EndTime     string `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	PeriodKind  string `json:"period_kind,omitempty" yaml:"period_kind,omitempty"`
	TimeSlot    string `json:"time_slot,omitempty" yaml:"time_slot,omitempty"`
	SeriesID    string `json:"series_id,omitempty" yaml:"series_id,omitempty"`
}

type Task struct {
	ID        string `json:"id" yaml:"id"`
	TaskDraft `yaml:",inline"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

type DoctorCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}
