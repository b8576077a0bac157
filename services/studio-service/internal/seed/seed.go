// Package seed loads the initial studio data from a YAML file.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/config"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/money"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/studio-service/internal/catalog"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/studio-service/internal/model"
)

type File struct {
	Profile  model.Profile          `yaml:"profile"`
	Services []model.Service        `yaml:"services"`
	Hours    []model.OperatingHours `yaml:"hours"`
}

// Store is the part of the repository seeding writes to.
type Store interface {
	SeedProfile(ctx context.Context, p model.Profile) (bool, error)
	CountServices(ctx context.Context) (int, error)
	CreateService(ctx context.Context, s *model.Service) error
	ListHours(ctx context.Context) ([]model.OperatingHours, error)
	UpsertHours(ctx context.Context, days []model.OperatingHours) error
}

// Load reads and validates a seed file. Service prices are BRL labels.
func Load(path string) (File, error) {
	var f File
	if err := config.LoadYAML(path, &f); err != nil {
		return File{}, err
	}
	for i, s := range f.Services {
		s.Price = money.ParseBRL(s.PriceLabel)
		norm, err := catalog.NormalizeService(s)
		if err != nil {
			return File{}, fmt.Errorf("service %d: %w", i, err)
		}
		f.Services[i] = norm
	}
	if err := catalog.ValidateHours(f.Hours); err != nil {
		return File{}, fmt.Errorf("hours: %w", err)
	}
	return f, nil
}

// Apply writes each section only when the matching table is empty, so an
// edited studio is never overwritten on restart.
func Apply(ctx context.Context, store Store, f File, logger *slog.Logger) error {
	seeded, err := store.SeedProfile(ctx, f.Profile)
	if err != nil {
		return fmt.Errorf("seed profile: %w", err)
	}
	if seeded {
		logger.Info("seeded studio profile", "name", f.Profile.Name)
	}

	n, err := store.CountServices(ctx)
	if err != nil {
		return fmt.Errorf("count services: %w", err)
	}
	if n == 0 {
		for i := range f.Services {
			if err := store.CreateService(ctx, &f.Services[i]); err != nil {
				return fmt.Errorf("seed service %q: %w", f.Services[i].Name, err)
			}
		}
		logger.Info("seeded services", "count", len(f.Services))
	}

	hours, err := store.ListHours(ctx)
	if err != nil {
		return fmt.Errorf("list hours: %w", err)
	}
	if len(hours) == 0 && len(f.Hours) > 0 {
		if err := store.UpsertHours(ctx, f.Hours); err != nil {
			return fmt.Errorf("seed hours: %w", err)
		}
		logger.Info("seeded operating hours", "days", len(f.Hours))
	}
	return nil
}
