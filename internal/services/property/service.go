// Package property ingests listing announcements from the shared broker and
// keeps the purchasable inventory current.
package property

import (
	"context"
	"errors"
	"log/slog"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/fx"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/infrastructure/broker"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/repository"
	pkgerrors "github.com/DanteArenas/iic2173-backend-grupo-9/pkg/errors"
)

type Service struct {
	properties repository.PropertyRepository
	converter  *fx.Converter
}

func NewService(properties repository.PropertyRepository, converter *fx.Converter) *Service {
	return &Service{properties: properties, converter: converter}
}

// HandleInfo upserts one listing announcement: a new url starts at one visit,
// a repeated url gains one. The reservation cost is converted eagerly so the
// purchase path reads a precomputed amount.
func (s *Service) HandleInfo(ctx context.Context, msg *broker.InfoMessage) error {
	listing := &models.Listing{
		URL:       msg.URL,
		Timestamp: msg.Timestamp,
		Location:  msg.Location,
		Price:     msg.Price,
		Currency:  msg.Currency,
	}

	cost, err := s.converter.ToCLP(ctx, msg.Price, msg.Currency, msg.Timestamp)
	if err != nil {
		if !errors.Is(err, pkgerrors.ErrValidation) && !errors.Is(err, pkgerrors.ErrUpstream) {
			return err
		}
		// Not convertible right now; keep the listing, price it at purchase
		// time instead.
		slog.Warn("listing reservation cost not convertible",
			"url", msg.URL,
			"currency", msg.Currency,
			"error", err)
		cost = 0
	}

	property, created, err := s.properties.Upsert(ctx, listing, cost)
	if err != nil {
		return err
	}

	slog.Info("listing recorded",
		"url", property.URL,
		"visits", property.Visits,
		"reservation_cost", property.ReservationCost,
		"created", created)
	return nil
}

func (s *Service) Get(ctx context.Context, url string) (*models.Property, error) {
	return s.properties.GetByURL(ctx, url)
}
