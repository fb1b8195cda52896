package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// EnqueueRunCycle asks the worker to run a cycle now. Requests within the same
// minute collapse into one task.
func EnqueueRunCycle(asynqClient *asynq.Client, reason string) error {
	taskPayload, err := json.Marshal(RunCyclePayload{Reason: reason, RequestedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeRunCycle, taskPayload)

	_, err = asynqClient.Enqueue(task, asynq.MaxRetry(0), asynq.Unique(time.Minute))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TaskTypeRunCycle, err)
	}
	return nil
}

// AsynqKicker enqueues cycle kicks for a worker listening on the same redis.
type AsynqKicker struct {
	client *asynq.Client
}

func NewAsynqKicker(client *asynq.Client) *AsynqKicker {
	return &AsynqKicker{client: client}
}

func (k *AsynqKicker) Kick(reason string) error {
	return EnqueueRunCycle(k.client, reason)
}
