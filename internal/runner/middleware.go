package runner

import "context"

// FailureLogger logs failed iterations.
type FailureLogger interface {
	LogFailure(ctx context.Context, err error)
}

// loggingIteration wraps an Iteration with failure logging.
type loggingIteration struct {
	inner  Iteration
	logger FailureLogger
}

// WithLogging wraps an Iteration to log failures.
func WithLogging(it Iteration, logger FailureLogger) Iteration {
	if logger == nil {
		return it
	}
	return &loggingIteration{
		inner:  it,
		logger: logger,
	}
}

func (l *loggingIteration) Run(ctx context.Context) error {
	err := l.inner.Run(ctx)
	if err != nil && l.logger != nil {
		l.logger.LogFailure(ctx, err)
	}
	return err
}
