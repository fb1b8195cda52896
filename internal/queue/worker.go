package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// HandleRunCycleTask turns a queued kick into a Trigger. The cycle itself runs on
// the scheduler's own loop, never on the asynq worker goroutine.
func (s *Scheduler) HandleRunCycleTask(ctx context.Context, task *asynq.Task) error {
	var payload RunCyclePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w: %w", TaskTypeRunCycle, err, asynq.SkipRetry)
	}

	s.log.Debug().Str("reason", payload.Reason).Time("requested_at", payload.RequestedAt).Msg("cycle kick received")
	s.Trigger()
	return nil
}

// NewTaskServer builds the asynq server and mux that feed kicks into s.
func NewTaskServer(redisOpt asynq.RedisConnOpt, s *Scheduler, log zerolog.Logger) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Logger:      asynqLogger{log: log},
		LogLevel:    asynq.WarnLevel,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeRunCycle, s.HandleRunCycleTask)
	return srv, mux
}

// asynqLogger adapts zerolog to asynq.Logger.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
