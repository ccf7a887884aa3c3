package workflow

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"bitbucket.org/mmdatafocus/conformity_backend/models"
	"bitbucket.org/mmdatafocus/conformity_backend/utils"
)

// MemoryDeviationRepository keeps the full aggregate in process memory. It
// backs the engine tests and local development without MySQL, and enforces the
// same version check as the GORM repository so stale-write behavior is
// testable. Events are collected instead of written to the outbox.
type MemoryDeviationRepository struct {
	mu      sync.Mutex
	byId    map[int]*models.Deviation
	series  map[string]map[int]int // businessId -> year -> last seq
	nextId  int
	Events  []models.DeviationEvent
}

func NewMemoryDeviationRepository() *MemoryDeviationRepository {
	return &MemoryDeviationRepository{
		byId:   map[int]*models.Deviation{},
		series: map[string]map[int]int{},
	}
}

// cloneDeviation round-trips through JSON so callers can never mutate the
// store without going through Save. Every model field carries a json tag.
func cloneDeviation(d *models.Deviation) *models.Deviation {
	raw, err := json.Marshal(d)
	if err != nil {
		panic(err)
	}
	var out models.Deviation
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return &out
}

func (r *MemoryDeviationRepository) allocId() int {
	r.nextId++
	return r.nextId
}

// assignIds mirrors what MySQL auto-increment plus the FK wiring in the GORM
// repository do on save.
func (r *MemoryDeviationRepository) assignIds(d *models.Deviation) {
	if d.RootCauseAnalysis != nil {
		rca := d.RootCauseAnalysis
		if rca.ID == 0 {
			rca.ID = r.allocId()
		}
		rca.BusinessId = d.BusinessId
		rca.DeviationId = d.ID
	}

	newActionId := 0
	for i := range d.CorrectiveActions {
		a := &d.CorrectiveActions[i]
		if a.ID == 0 {
			a.ID = r.allocId()
			newActionId = a.ID
		}
		a.BusinessId = d.BusinessId
		a.DeviationId = d.ID
	}
	for i := range d.PreventiveActions {
		a := &d.PreventiveActions[i]
		if a.ID == 0 {
			a.ID = r.allocId()
		}
		a.BusinessId = d.BusinessId
		a.DeviationId = d.ID
	}
	for i := range d.EffectivenessChecks {
		c := &d.EffectivenessChecks[i]
		if c.ID == 0 {
			c.ID = r.allocId()
		}
		c.BusinessId = d.BusinessId
		c.DeviationId = d.ID
		if c.CorrectiveActionId == 0 {
			c.CorrectiveActionId = newActionId
		}
		for j := range c.SuccessCriteria {
			sc := &c.SuccessCriteria[j]
			if sc.ID == 0 {
				sc.ID = r.allocId()
			}
			sc.BusinessId = d.BusinessId
			sc.CheckId = c.ID
		}
		for j := range c.FollowUpActions {
			fu := &c.FollowUpActions[j]
			if fu.ID == 0 {
				fu.ID = r.allocId()
			}
			fu.BusinessId = d.BusinessId
			fu.CheckId = c.ID
		}
	}
	if d.Closure != nil {
		if d.Closure.ID == 0 {
			d.Closure.ID = r.allocId()
		}
		d.Closure.BusinessId = d.BusinessId
		d.Closure.DeviationId = d.ID
	}
}

func (r *MemoryDeviationRepository) Get(ctx context.Context, id int) (*models.Deviation, error) {
	businessId, _ := utils.GetBusinessIdFromContext(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byId[id]
	if !ok || d.BusinessId != businessId {
		return nil, utils.ErrorRecordNotFound
	}
	return cloneDeviation(d), nil
}

func (r *MemoryDeviationRepository) GetByCheckId(ctx context.Context, checkId int) (*models.Deviation, error) {
	businessId, _ := utils.GetBusinessIdFromContext(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.byId {
		if d.BusinessId != businessId {
			continue
		}
		for i := range d.EffectivenessChecks {
			if d.EffectivenessChecks[i].ID == checkId {
				return cloneDeviation(d), nil
			}
		}
	}
	return nil, utils.ErrorRecordNotFound
}

func (r *MemoryDeviationRepository) Create(ctx context.Context, d *models.Deviation, events ...models.DeviationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	year := d.DiscoveredDate.Year()
	if r.series[d.BusinessId] == nil {
		r.series[d.BusinessId] = map[int]int{}
	}
	r.series[d.BusinessId][year]++
	d.DeviationNumber = models.FormatDeviationNumber("DEV", year, r.series[d.BusinessId][year])

	d.ID = r.allocId()
	r.assignIds(d)
	r.byId[d.ID] = cloneDeviation(d)
	r.recordEvents(d, events)
	return nil
}

func (r *MemoryDeviationRepository) Save(ctx context.Context, d *models.Deviation, events ...models.DeviationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byId[d.ID]
	if !ok || stored.BusinessId != d.BusinessId {
		return utils.ErrorRecordNotFound
	}
	if stored.Version != d.Version {
		return utils.ErrorStaleRecord
	}
	d.Version++
	r.assignIds(d)
	r.byId[d.ID] = cloneDeviation(d)
	r.recordEvents(d, events)
	return nil
}

func (r *MemoryDeviationRepository) recordEvents(d *models.Deviation, events []models.DeviationEvent) {
	for _, e := range events {
		e.DeviationId = d.ID
		e.BusinessId = d.BusinessId
		r.Events = append(r.Events, e)
	}
}

func (r *MemoryDeviationRepository) List(ctx context.Context, filter models.DeviationFilter) ([]*models.Deviation, error) {
	businessId, _ := utils.GetBusinessIdFromContext(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Deviation
	for _, d := range r.byId {
		if d.BusinessId != businessId || !filter.Matches(d) {
			continue
		}
		out = append(out, cloneDeviation(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DiscoveredDate.Equal(out[j].DiscoveredDate) {
			return out[i].DiscoveredDate.After(out[j].DiscoveredDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
