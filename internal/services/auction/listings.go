package auction

import (
	"context"
	"fmt"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
	pkgerrors "github.com/DanteArenas/iic2173-backend-grupo-9/pkg/errors"
)

// ListSchedules returns the group's tradeable schedules.
func (s *Service) ListSchedules(ctx context.Context, groupID int32) ([]models.Schedule, error) {
	return s.schedules.ListByGroup(ctx, groupID)
}

// UpdateSchedule applies the owner-editable listing fields. Discounts are
// capped at 10 percent by marketplace rule.
func (s *Service) UpdateSchedule(ctx context.Context, scheduleID int64, groupID int32, discountPct *int32, status *models.ScheduleStatus) (*models.Schedule, error) {
	if discountPct != nil && (*discountPct < 0 || *discountPct > 10) {
		return nil, fmt.Errorf("%w: discount must be between 0 and 10", pkgerrors.ErrValidation)
	}
	if status != nil {
		switch *status {
		case models.ScheduleAvailable, models.ScheduleOwned:
		default:
			return nil, fmt.Errorf("%w: status must be AVAILABLE or OWNED", pkgerrors.ErrValidation)
		}
	}

	schedule, err := s.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule.OwnerGroupID != groupID {
		return nil, pkgerrors.ErrNotScheduleOwner
	}
	if schedule.Status == models.ScheduleAuction || schedule.Status == models.ScheduleSold {
		return nil, pkgerrors.ErrScheduleNotForSale
	}

	return s.schedules.UpdateListing(ctx, scheduleID, discountPct, status)
}
