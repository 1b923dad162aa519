// Package service runs long-lived parts of the client side by side and stops
// all of them once one fails.
package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Service interface {
	Name() string
	Run(ctx context.Context) error
}

type funcService struct {
	name string
	run  func(ctx context.Context) error
}

func (s funcService) Name() string                  { return s.name }
func (s funcService) Run(ctx context.Context) error { return s.run(ctx) }

// Func wraps run as a named Service.
func Func(name string, run func(ctx context.Context) error) Service {
	return funcService{name: name, run: run}
}

// Manager manages a collection of services.
type Manager struct {
	mu       sync.Mutex
	services []Service
	group    *errgroup.Group
}

func NewManager() *Manager {
	return &Manager{}
}

// Register adds services to be started by Run.
func (sm *Manager) Register(s ...Service) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.services = append(sm.services, s...)
}

// Run starts all registered services. The context passed to services is
// cancelled when ctx is done or any service returns.
func (sm *Manager) Run(ctx context.Context) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	group, ctx := errgroup.WithContext(ctx)
	for _, s := range sm.services {
		s := s
		group.Go(func() error {
			log.Debug().Str("service", s.Name()).Msg("service started")
			err := s.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("service", s.Name()).Msg("service stopped with error")
				return err
			}
			log.Debug().Str("service", s.Name()).Msg("service stopped")
			// A clean return stops the rest too.
			return context.Canceled
		})
	}
	sm.group = group
}

// Wait blocks until every service returned. A cancellation is not reported
// as an error.
func (sm *Manager) Wait() error {
	sm.mu.Lock()
	group := sm.group
	sm.mu.Unlock()
	if group == nil {
		return nil
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
