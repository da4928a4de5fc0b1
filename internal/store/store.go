package store

import (
	"context"
	"errors"

	"github.com/agis/consultcal/internal/contract"
)

var ErrNotFound = errors.New("task not found")

type TaskFilter struct {
	OwnerID  string
	SeriesID string
	Query    string
	Limit    int
}

// TaskUpdateInput carries a partial update; nil fields are left unchanged.
type TaskUpdateInput struct {
	Title       *string
	ClientName  *string
	Description *string
	OwnerID     *string
	ExactDate   *string
	StartDate   *string
	EndDate     *string
	StartTime   *string
	EndTime     *string
	PeriodKind  *string
	TimeSlot    *string
}

func (in TaskUpdateInput) Empty() bool {
	return in == TaskUpdateInput{}
}

type Store interface {
	Doctor(context.Context) ([]contract.DoctorCheck, error)
	ListTasks(context.Context, TaskFilter) ([]contract.Task, error)
	GetTask(context.Context, string) (*contract.Task, error)
	AddTask(context.Context, contract.TaskDraft) (*contract.Task, error)
	UpdateTask(context.Context, string, TaskUpdateInput) (*contract.Task, error)
	DeleteTask(context.Context, string) error
	// Revision increases on every successful write. Readers use it as the
	// version of the task collection.
	Revision(context.Context) (int64, error)
	Close() error
}
