package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"bitbucket.org/mmdatafocus/conformity_backend/config"
	"bitbucket.org/mmdatafocus/conformity_backend/models"
	"bitbucket.org/mmdatafocus/conformity_backend/utils"
	"bitbucket.org/mmdatafocus/conformity_backend/workflow"
)

type DeviationController struct {
	Engine *workflow.Engine
}

func NewDeviationController(engine *workflow.Engine) *DeviationController {
	return &DeviationController{Engine: engine}
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// rejectAuditors blocks writes for auditor tokens. Auditors see everything
// and change nothing.
func rejectAuditors(c *gin.Context) bool {
	if isAuditor, _ := utils.GetIsAuditorFromContext(c.Request.Context()); isAuditor {
		c.JSON(http.StatusForbidden, gin.H{"error": utils.ErrorReadOnlySession.Error()})
		return false
	}
	return true
}

func bindJSON(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		}
		return false
	}
	return true
}

func respondError(c *gin.Context, err error) {
	var verr *workflow.ValidationError
	var ierr *workflow.InvariantViolationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"errors": verr.Errors, "warnings": verr.Warnings})
	case errors.As(err, &ierr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": ierr.Error()})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	case errors.Is(err, utils.ErrorStaleRecord):
		// Optimistic concurrency conflict. Never retried server-side; the
		// client re-reads the current version and decides.
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// obtainDeviationLock takes a short Redis lock per deviation so two editors
// of the same record fail fast instead of burning a version conflict. Best
// effort only: correctness comes from the version check and the MySQL
// advisory lock underneath, so an unavailable Redis never blocks a write.
func obtainDeviationLock(c *gin.Context, deviationId int) *redislock.Lock {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil
	}
	businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
	key := fmt.Sprintf("capa:lock:%s:%d", businessId, deviationId)
	lock, err := locker.Obtain(c.Request.Context(), key, 5*time.Second, nil)
	if err != nil {
		return nil
	}
	return lock
}

func releaseLock(lock *redislock.Lock) {
	if lock != nil {
		_ = lock.Release(context.Background())
	}
}

func (ctl *DeviationController) CreateDeviation(c *gin.Context) {
	if !rejectAuditors(c) {
		return
	}
	var input models.NewDeviation
	if !bindJSON(c, &input) {
		return
	}
	d, err := ctl.Engine.CreateDeviation(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (ctl *DeviationController) ListDeviations(c *gin.Context) {
	var filter models.DeviationFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter"})
		return
	}
	out, err := ctl.Engine.ListDeviations(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deviations": out, "count": len(out)})
}

func (ctl *DeviationController) GetDeviation(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	d, err := ctl.Engine.GetDeviation(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (ctl *DeviationController) UpdateDeviation(c *gin.Context) {
	if !rejectAuditors(c) {
		return
	}
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.UpdateDeviationInput
	if !bindJSON(c, &input) {
		return
	}
	defer releaseLock(obtainDeviationLock(c, id))

	d, err := ctl.Engine.UpdateDeviation(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (ctl *DeviationController) RejectDeviation(c *gin.Context) {
	if !rejectAuditors(c) {
		return
	}
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req rejectRequest
	if !bindJSON(c, &req) {
		return
	}
	defer releaseLock(obtainDeviationLock(c, id))

	d, err := ctl.Engine.RejectDeviation(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// ValidateDeviation is the dry-run endpoint the intake form calls while the
// user types; nothing is persisted.
func (ctl *DeviationController) ValidateDeviation(c *gin.Context) {
	var input models.NewDeviation
	if !bindJSON(c, &input) {
		return
	}
	c.JSON(http.StatusOK, ctl.Engine.ValidateDeviation(&input))
}

func (ctl *DeviationController) CheckRecurrence(c *gin.Context) {
	var input models.NewDeviation
	if !bindJSON(c, &input) {
		return
	}
	matches, err := ctl.Engine.CheckRecurrence(c.Request.Context(), &input, 0)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches, "count": len(matches)})
}

func (ctl *DeviationController) PerformRootCauseAnalysis(c *gin.Context) {
	if !rejectAuditors(c) {
		return
	}
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.NewRootCauseAnalysis
	if !bindJSON(c, &input) {
		return
	}
	defer releaseLock(obtainDeviationLock(c, id))

	d, err := ctl.Engine.PerformRootCauseAnalysis(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (ctl *DeviationController) AddCorrectiveAction(c *gin.Context) {
	if !rejectAuditors(c) {
		return
	}
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.NewCorrectiveAction
	if !bindJSON(c, &input) {
		return
	}
	defer releaseLock(obtainDeviationLock(c, id))

	action, err := ctl.Engine.AddCorrectiveAction(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, action)
}

func (ctl *DeviationController) AddPreventiveAction(c *gin.Context) {
	if !rejectAuditors(c) {
		return
	}
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.NewPreventiveAction
	if !bindJSON(c, &input) {
		return
	}
	defer releaseLock(obtainDeviationLock(c, id))

	action, err := ctl.Engine.AddPreventiveAction(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, action)
}

func (ctl *DeviationController) UpdateCorrectiveActionStatus(c *gin.Context) {
	if !rejectAuditors(c) {
		return
	}
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	actionId, ok := pathId(c, "actionId")
	if !ok {
		return
	}
	var input models.UpdateActionStatusInput
	if !bindJSON(c, &input) {
		return
	}
	defer releaseLock(obtainDeviationLock(c, id))

	d, err := ctl.Engine.UpdateCorrectiveActionStatus(c.Request.Context(), id, actionId, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (ctl *DeviationController) UpdatePreventiveActionStatus(c *gin.Context) {
	if !rejectAuditors(c) {
		return
	}
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	actionId, ok := pathId(c, "actionId")
	if !ok {
		return
	}
	var input models.UpdateActionStatusInput
	if !bindJSON(c, &input) {
		return
	}
	defer releaseLock(obtainDeviationLock(c, id))

	d, err := ctl.Engine.UpdatePreventiveActionStatus(c.Request.Context(), id, actionId, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (ctl *DeviationController) ScheduleEffectivenessCheck(c *gin.Context) {
	if !rejectAuditors(c) {
		return
	}
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.NewEffectivenessCheck
	if !bindJSON(c, &input) {
		return
	}
	defer releaseLock(obtainDeviationLock(c, id))

	check, err := ctl.Engine.ScheduleEffectivenessCheck(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, check)
}

func (ctl *DeviationController) PerformEffectivenessCheck(c *gin.Context) {
	if !rejectAuditors(c) {
		return
	}
	checkId, ok := pathId(c, "checkId")
	if !ok {
		return
	}
	var results models.CheckResults
	if !bindJSON(c, &results) {
		return
	}
	d, err := ctl.Engine.PerformEffectivenessCheck(c.Request.Context(), checkId, &results)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (ctl *DeviationController) GetOverdueEffectivenessChecks(c *gin.Context) {
	overdue, err := ctl.Engine.GetOverdueEffectivenessChecks(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"overdue": overdue, "count": len(overdue)})
}

func (ctl *DeviationController) GetCAPAStatistics(c *gin.Context) {
	stats, err := ctl.Engine.GetCAPAStatistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
