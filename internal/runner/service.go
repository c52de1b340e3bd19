package runner

import (
	"context"
	"time"

	"signal_bot/internal/intake"
	"signal_bot/internal/ledger"
	"signal_bot/internal/models"
	"signal_bot/internal/registry"
)

// Clock is the time source of the engine; tests pin it.
type Clock func() time.Time

// Service is the engine facade used by intake surfaces (Telegram, HTTP).
type Service struct {
	reg *registry.Registry
	led ledger.Ledger
	now Clock
}

func NewService(reg *registry.Registry, led ledger.Ledger, now Clock) *Service {
	return &Service{reg: reg, led: led, now: now}
}

// Submit registers a validated request.
func (s *Service) Submit(req models.SignalRequest) (string, error) {
	return s.reg.Create(req, s.now())
}

// SubmitText parses a #portx block and registers it for destination.
func (s *Service) SubmitText(text string, destination int64) (models.SignalRequest, string, error) {
	req, err := intake.Parse(text)
	if err != nil {
		return models.SignalRequest{}, "", err
	}
	req.Destination = destination
	id, err := s.Submit(req)
	if err != nil {
		return models.SignalRequest{}, "", err
	}
	return req, id, nil
}

func (s *Service) ListActive(destination int64) []models.SignalSummary {
	return s.reg.ListActive(destination)
}

func (s *Service) Get(id string) (models.Signal, bool) {
	return s.reg.Get(id)
}

// Recap summarizes the destination's closures from windowStart until now.
func (s *Service) Recap(ctx context.Context, destination int64, windowStart time.Time) (models.RecapSummary, error) {
	until := s.now()
	recs, err := s.led.Window(ctx, destination, windowStart)
	if err != nil {
		return models.RecapSummary{}, err
	}
	return ledger.Summarize(destination, windowStart, until, recs), nil
}

func (s *Service) Now() time.Time { return s.now() }
