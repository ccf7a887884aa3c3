package workflow

import (
	"context"
	"time"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/conformity_backend/config"
	"bitbucket.org/mmdatafocus/conformity_backend/models"
	"bitbucket.org/mmdatafocus/conformity_backend/utils"
)

// Clock supplies the current time to the engine. Scheduling and evaluation
// are date arithmetic, so tests pin it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }

// DeviationRepository is the engine's only persistence dependency. The tenant
// comes from the request context on every call. Save applies the change and
// the produced events atomically, and fails with utils.ErrorStaleRecord when
// the aggregate's version no longer matches the stored one.
type DeviationRepository interface {
	Get(ctx context.Context, id int) (*models.Deviation, error)
	GetByCheckId(ctx context.Context, checkId int) (*models.Deviation, error)
	Create(ctx context.Context, d *models.Deviation, events ...models.DeviationEvent) error
	Save(ctx context.Context, d *models.Deviation, events ...models.DeviationEvent) error
	List(ctx context.Context, filter models.DeviationFilter) ([]*models.Deviation, error)
}

type GormDeviationRepository struct {
	DB *gorm.DB
}

func NewGormDeviationRepository(db *gorm.DB) *GormDeviationRepository {
	return &GormDeviationRepository{DB: db}
}

// db falls back to the global connection so the repository can be wired into
// routes before the startup sequence has connected the database (requests
// are gated on readiness until then).
func (r *GormDeviationRepository) db() *gorm.DB {
	if r.DB != nil {
		return r.DB
	}
	return config.GetDB()
}

var deviationPreloads = []string{
	"RootCauseAnalysis",
	"CorrectiveActions",
	"PreventiveActions",
	"EffectivenessChecks",
	"EffectivenessChecks.SuccessCriteria",
	"EffectivenessChecks.FollowUpActions",
	"Closure",
	"Documents",
}

func (r *GormDeviationRepository) withPreloads(ctx context.Context) *gorm.DB {
	db := r.db().WithContext(ctx)
	for _, p := range deviationPreloads {
		db = db.Preload(p)
	}
	return db
}

func (r *GormDeviationRepository) Get(ctx context.Context, id int) (*models.Deviation, error) {
	businessId, _ := utils.GetBusinessIdFromContext(ctx)

	var d models.Deviation
	err := r.withPreloads(ctx).
		Where("id = ? AND business_id = ?", id, businessId).
		First(&d).Error
	if err == gorm.ErrRecordNotFound {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *GormDeviationRepository) GetByCheckId(ctx context.Context, checkId int) (*models.Deviation, error) {
	businessId, _ := utils.GetBusinessIdFromContext(ctx)

	var check models.EffectivenessCheck
	err := r.db().WithContext(ctx).
		Select("deviation_id").
		Where("id = ? AND business_id = ?", checkId, businessId).
		First(&check).Error
	if err == gorm.ErrRecordNotFound {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, check.DeviationId)
}

func (r *GormDeviationRepository) Create(ctx context.Context, d *models.Deviation, events ...models.DeviationEvent) error {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	return r.db().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := models.NextDeviationNumber(tx, d.BusinessId, d.DiscoveredDate.Year())
		if err != nil {
			return err
		}
		d.DeviationNumber = number

		if err := tx.Create(d).Error; err != nil {
			return err
		}
		return writeEvents(tx, d, events, correlationId)
	})
}

// Save persists the whole aggregate under an advisory lock with an optimistic
// version check on the root row. Children are append-or-update only; the
// workflow never deletes them. Effectiveness checks carrying a zero
// CorrectiveActionId were scheduled in this call for the action created in
// this call, and are linked to it once the action row has its id.
func (r *GormDeviationRepository) Save(ctx context.Context, d *models.Deviation, events ...models.DeviationEvent) error {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	return r.db().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireDeviationLock(tx, d.BusinessId, d.ID); err != nil {
			return err
		}
		defer ReleaseDeviationLock(tx, d.BusinessId, d.ID)

		loadedVersion := d.Version
		d.Version = loadedVersion + 1

		res := tx.Model(&models.Deviation{}).
			Where("id = ? AND business_id = ? AND version = ?", d.ID, d.BusinessId, loadedVersion).
			Select("title", "description", "type", "severity", "source",
				"recipe_id", "batch_id", "test_report_id", "calibration_id",
				"immediate_action", "status", "version").
			Updates(d)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.ErrorStaleRecord
		}

		if d.RootCauseAnalysis != nil {
			d.RootCauseAnalysis.BusinessId = d.BusinessId
			d.RootCauseAnalysis.DeviationId = d.ID
			if err := tx.Save(d.RootCauseAnalysis).Error; err != nil {
				return err
			}
		}

		newActionId := 0
		for i := range d.CorrectiveActions {
			a := &d.CorrectiveActions[i]
			a.BusinessId = d.BusinessId
			a.DeviationId = d.ID
			created := a.ID == 0
			if err := tx.Save(a).Error; err != nil {
				return err
			}
			if created {
				newActionId = a.ID
			}
		}

		for i := range d.PreventiveActions {
			a := &d.PreventiveActions[i]
			a.BusinessId = d.BusinessId
			a.DeviationId = d.ID
			if err := tx.Save(a).Error; err != nil {
				return err
			}
		}

		for i := range d.EffectivenessChecks {
			c := &d.EffectivenessChecks[i]
			c.BusinessId = d.BusinessId
			c.DeviationId = d.ID
			if c.CorrectiveActionId == 0 {
				c.CorrectiveActionId = newActionId
			}
			if err := tx.Save(c).Error; err != nil {
				return err
			}
			for j := range c.SuccessCriteria {
				sc := &c.SuccessCriteria[j]
				sc.BusinessId = d.BusinessId
				sc.CheckId = c.ID
				if err := tx.Save(sc).Error; err != nil {
					return err
				}
			}
			for j := range c.FollowUpActions {
				fu := &c.FollowUpActions[j]
				fu.BusinessId = d.BusinessId
				fu.CheckId = c.ID
				if err := tx.Save(fu).Error; err != nil {
					return err
				}
			}
		}

		if d.Closure != nil {
			d.Closure.BusinessId = d.BusinessId
			d.Closure.DeviationId = d.ID
			if err := tx.Save(d.Closure).Error; err != nil {
				return err
			}
		}

		return writeEvents(tx, d, events, correlationId)
	})
}

func writeEvents(tx *gorm.DB, d *models.Deviation, events []models.DeviationEvent, correlationId string) error {
	for _, e := range events {
		e.DeviationId = d.ID
		e.BusinessId = d.BusinessId
		record, err := e.ToRecord(correlationId)
		if err != nil {
			return err
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *GormDeviationRepository) List(ctx context.Context, filter models.DeviationFilter) ([]*models.Deviation, error) {
	businessId, _ := utils.GetBusinessIdFromContext(ctx)

	db := r.withPreloads(ctx).Where("business_id = ?", businessId)
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.Severity != nil {
		db = db.Where("severity = ?", *filter.Severity)
	}
	if filter.Type != nil {
		db = db.Where("type = ?", *filter.Type)
	}
	if filter.FromDate != nil {
		db = db.Where("discovered_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		db = db.Where("discovered_date <= ?", *filter.ToDate)
	}
	if filter.RecipeId != nil {
		db = db.Where("recipe_id = ?", *filter.RecipeId)
	}
	if filter.BatchId != nil {
		db = db.Where("batch_id = ?", *filter.BatchId)
	}

	var out []*models.Deviation
	if err := db.Order("discovered_date DESC, id DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
