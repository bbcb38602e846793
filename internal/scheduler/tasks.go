package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/KauaneAlmeida/back-end-teste/internal/completion"

	"github.com/hibiken/asynq"
)

// Task types, one per completion job kind.
const (
	TaskLeadPersist = string(completion.KindPersist)
	TaskLeadNotify  = string(completion.KindNotify)
	TaskLeadConfirm = string(completion.KindConfirm)
	TaskWelcome     = string(completion.KindWelcome)
)

func NewCompletionTask(job completion.Job, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(string(job.Kind), data, opts...), nil
}

func ParseCompletionPayload(task *asynq.Task) (completion.Job, error) {
	var job completion.Job
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return completion.Job{}, err
	}
	if string(job.Kind) != task.Type() {
		return completion.Job{}, fmt.Errorf("task %s carries a %s job", task.Type(), job.Kind)
	}
	return job, nil
}
