package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mtlprog/finsight/internal/domain"
)

// ErrInvalidSettings wraps rejected settings updates.
var ErrInvalidSettings = errors.New("invalid settings")

// Update is a partial settings change; nil fields keep their current value.
type Update struct {
	Currency *string `json:"currency"`
	Timezone *string `json:"timezone"`
}

// Service reads and updates user settings.
type Service struct {
	repo            Repository
	defaultTimezone string
}

// NewService creates a settings service. defaultTimezone is reported for users without one.
func NewService(repo Repository, defaultTimezone string) *Service {
	if defaultTimezone == "" {
		defaultTimezone = "UTC"
	}
	return &Service{repo: repo, defaultTimezone: defaultTimezone}
}

// FindOne returns the user's settings, or nil when none are stored.
func (s *Service) FindOne(ctx context.Context, userID string) (*domain.UserSettings, error) {
	settings, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &settings, nil
}

// GetTimezone returns the user's IANA timezone, or the default when unset or unknown.
func (s *Service) GetTimezone(ctx context.Context, userID string) (string, error) {
	settings, err := s.FindOne(ctx, userID)
	if err != nil {
		return "", err
	}
	if settings == nil || settings.Timezone == "" {
		return s.defaultTimezone, nil
	}
	if _, err := time.LoadLocation(settings.Timezone); err != nil {
		slog.Warn("stored timezone is unknown, using default", "user_id", userID, "timezone", settings.Timezone)
		return s.defaultTimezone, nil
	}
	return settings.Timezone, nil
}

// PreferredCurrency returns the user's display currency, USD when unset.
func (s *Service) PreferredCurrency(ctx context.Context, userID string) (string, error) {
	settings, err := s.FindOne(ctx, userID)
	if err != nil {
		return "", err
	}
	if settings == nil || settings.Currency == "" {
		return domain.DefaultCurrency, nil
	}
	return settings.Currency, nil
}

// Update applies a partial change and returns the stored settings.
func (s *Service) Update(ctx context.Context, userID string, in Update) (domain.UserSettings, error) {
	current, err := s.FindOne(ctx, userID)
	if err != nil {
		return domain.UserSettings{}, err
	}
	next := domain.UserSettings{UserID: userID, Currency: domain.DefaultCurrency, Timezone: s.defaultTimezone}
	if current != nil {
		next = *current
	}

	if in.Currency != nil {
		code := domain.NormalizeCurrency(*in.Currency)
		if !domain.ValidCurrency(code) {
			return domain.UserSettings{}, fmt.Errorf("%w: currency %q", ErrInvalidSettings, *in.Currency)
		}
		next.Currency = code
	}
	if in.Timezone != nil {
		if _, err := time.LoadLocation(*in.Timezone); err != nil || *in.Timezone == "" {
			return domain.UserSettings{}, fmt.Errorf("%w: timezone %q", ErrInvalidSettings, *in.Timezone)
		}
		next.Timezone = *in.Timezone
	}

	return s.repo.Save(ctx, next)
}
