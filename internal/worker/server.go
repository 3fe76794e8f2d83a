package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"social_platform/internal/config"
	"social_platform/internal/repository"
	"social_platform/pkg/logger"
)

const taskTimeout = 10 * time.Second

// Server consumes the audit queue.
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    logger.Logger
}

// NewServer builds a consumer that writes queued entries into store.
func NewServer(redisOpt asynq.RedisConnOpt, cfg config.WorkerConfig, store repository.AuditRepository, log logger.Logger) *Server {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.Queue: 1},
		Logger:      asynqLogger{log: log},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Warn("Task failed", "type", task.Type(), "error", err)
		}),
	})

	mux := asynq.NewServeMux()
	mux.Handle(TaskAppendAudit, &appendAuditHandler{store: store, timeout: taskTimeout, log: log})

	return &Server{server: srv, mux: mux, log: log}
}

// Run processes tasks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	s.log.Info("Worker started")

	<-ctx.Done()
	s.server.Shutdown()
	s.log.Info("Worker stopped")
	return nil
}

// RedisOpt builds the asynq connection options from the shared Redis config.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// asynqLogger routes asynq's printf-style logging into the structured logger.
type asynqLogger struct {
	log logger.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal(fmt.Sprint(args...)) }
