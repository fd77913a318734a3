package repository

import (
	"context"
	"errors"
	"time"

	"brickvest/internal/model"

	"gorm.io/gorm"
)

var (
	ErrAllocationNotFound = errors.New("allocation not found")

	// ErrDuplicateAllocation marks an allocation_no that already exists;
	// a re-driven payout tolerates it.
	ErrDuplicateAllocation = errors.New("allocation already exists")
)

type AllocationRepository struct {
	db *gorm.DB
}

func NewAllocationRepository(db *gorm.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

func (r *AllocationRepository) Create(ctx context.Context, tx *gorm.DB, alloc *model.ReinvestAllocation) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(alloc).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateAllocation
	}
	return err
}

func (r *AllocationRepository) GetByAllocationNo(ctx context.Context, allocationNo string) (*model.ReinvestAllocation, error) {
	var alloc model.ReinvestAllocation
	err := r.db.WithContext(ctx).Where("allocation_no = ?", allocationNo).First(&alloc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAllocationNotFound
		}
		return nil, err
	}
	return &alloc, nil
}

// GetDue returns pending allocations whose next attempt time has passed.
func (r *AllocationRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]*model.ReinvestAllocation, error) {
	var allocs []*model.ReinvestAllocation
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", model.AllocationStatusPending, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&allocs).Error
	return allocs, err
}

// GetStale returns pending allocations that have not moved for longer
// than the given cutoff; the reconciler surfaces them to operators.
func (r *AllocationRepository) GetStale(ctx context.Context, cutoff time.Time, limit int) ([]*model.ReinvestAllocation, error) {
	var allocs []*model.ReinvestAllocation
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at <= ?", model.AllocationStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&allocs).Error
	return allocs, err
}

// GetFailed returns failed allocations for the reconciliation sweep.
func (r *AllocationRepository) GetFailed(ctx context.Context, limit int) ([]*model.ReinvestAllocation, error) {
	var allocs []*model.ReinvestAllocation
	err := r.db.WithContext(ctx).
		Where("status = ?", model.AllocationStatusFailed).
		Order("created_at ASC").
		Limit(limit).
		Find(&allocs).Error
	return allocs, err
}

// MarkSubmitted records the external investment ID assigned by the
// Investment Processor. Guarded on the current status so a racing
// retry cannot double-finalize.
func (r *AllocationRepository) MarkSubmitted(ctx context.Context, allocationNo, investmentID string) error {
	result := r.db.WithContext(ctx).
		Model(&model.ReinvestAllocation{}).
		Where("allocation_no = ? AND status = ?", allocationNo, model.AllocationStatusPending).
		Updates(map[string]interface{}{
			"status":        model.AllocationStatusSubmitted,
			"investment_id": investmentID,
			"submitted_at":  gorm.Expr("NOW()"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAllocationNotFound
	}
	return nil
}

// RecordAttempt bumps the attempt counter and schedules the next retry.
func (r *AllocationRepository) RecordAttempt(ctx context.Context, allocationNo string, nextAttemptAt time.Time, lastError string) error {
	return r.db.WithContext(ctx).
		Model(&model.ReinvestAllocation{}).
		Where("allocation_no = ?", allocationNo).
		Updates(map[string]interface{}{
			"attempt_count":   gorm.Expr("attempt_count + 1"),
			"next_attempt_at": nextAttemptAt,
			"last_error":      lastError,
		}).Error
}

func (r *AllocationRepository) MarkFailed(ctx context.Context, tx *gorm.DB, allocationNo, lastError string) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.ReinvestAllocation{}).
		Where("allocation_no = ? AND status = ?", allocationNo, model.AllocationStatusPending).
		Updates(map[string]interface{}{
			"status":     model.AllocationStatusFailed,
			"last_error": lastError,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAllocationNotFound
	}
	return nil
}

// Approve moves an awaiting-approval allocation to pending. Guarded on
// the current status so repeated approvals are no-ops at this layer.
func (r *AllocationRepository) Approve(ctx context.Context, tx *gorm.DB, allocationNo string, nextAttemptAt time.Time) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.ReinvestAllocation{}).
		Where("allocation_no = ? AND status = ?", allocationNo, model.AllocationStatusAwaitingApproval).
		Updates(map[string]interface{}{
			"status":          model.AllocationStatusPending,
			"next_attempt_at": nextAttemptAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
