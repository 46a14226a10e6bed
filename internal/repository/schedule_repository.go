package repository

import (
	"context"
	"database/sql"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
)

type ScheduleRepository interface {
	Insert(ctx context.Context, tx *sql.Tx, schedule *models.Schedule) error
	GetByID(ctx context.Context, id int64) (*models.Schedule, error)
	GetByIDForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Schedule, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id int64, status models.ScheduleStatus) error
	// TransferOwnership moves the schedule to another group, setting the new
	// status in the same statement.
	TransferOwnership(ctx context.Context, tx *sql.Tx, id int64, newGroupID int32, status models.ScheduleStatus) error
	// UpdateListing applies the owner-editable fields (discount, sale status).
	UpdateListing(ctx context.Context, id int64, discountPct *int32, status *models.ScheduleStatus) (*models.Schedule, error)
	ListByGroup(ctx context.Context, groupID int32) ([]models.Schedule, error)
}
