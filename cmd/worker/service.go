package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/multierr"

	"github.com/furnique/furnique-backend/pkg/logger"
)

const (
	defaultReadyTimeout = 30 * time.Second
	defaultReadyRetry   = 2 * time.Second
)

type pinger interface {
	Ping(context.Context) error
}

type runner interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger *logger.Logger
	// Dependencies are pinged by name until all answer or ReadyTimeout passes.
	Dependencies map[string]pinger
	Consumer     runner
	ReadyTimeout time.Duration
	ReadyRetry   time.Duration
}

// Service waits for its dependencies and then drains the consumer until the
// context ends.
type Service struct {
	logg         *logger.Logger
	deps         map[string]pinger
	names        []string
	consumer     runner
	readyTimeout time.Duration
	readyRetry   time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.Consumer == nil:
		return nil, errors.New("consumer is required")
	}
	names := make([]string, 0, len(params.Dependencies))
	for name, dep := range params.Dependencies {
		if dep == nil {
			return nil, fmt.Errorf("dependency %q is nil", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	svc := &Service{
		logg:         params.Logger,
		deps:         params.Dependencies,
		names:        names,
		consumer:     params.Consumer,
		readyTimeout: params.ReadyTimeout,
		readyRetry:   params.ReadyRetry,
	}
	if svc.readyTimeout <= 0 {
		svc.readyTimeout = defaultReadyTimeout
	}
	if svc.readyRetry <= 0 {
		svc.readyRetry = defaultReadyRetry
	}
	return svc, nil
}

// Run returns ctx.Err() on shutdown and the consumer's error otherwise.
func (s *Service) Run(ctx context.Context) error {
	if err := s.waitReady(ctx); err != nil {
		return err
	}
	s.logg.Info(s.logg.WithField(ctx, "dependencies", s.names), "worker dependencies ready")

	err := s.consumer.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		return errors.New("consumer returned before shutdown")
	}
	s.logg.Error(ctx, "consumer stopped unexpectedly", err)
	return err
}

func (s *Service) waitReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, s.readyTimeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		err := s.pingAll(readyCtx)
		if err == nil {
			return nil
		}
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"attempt": attempt,
			"error":   err.Error(),
		}), "worker dependencies not ready")

		timer := time.NewTimer(s.readyRetry)
		select {
		case <-readyCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("dependencies not ready after %s: %w", s.readyTimeout, err)
		case <-timer.C:
		}
	}
}

func (s *Service) pingAll(ctx context.Context) error {
	var errs error
	for _, name := range s.names {
		if err := s.deps[name].Ping(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errs
}
