package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bitbucket.org/mmdatafocus/conformity_backend/config"
	"bitbucket.org/mmdatafocus/conformity_backend/models"
	"bitbucket.org/mmdatafocus/conformity_backend/models/reports"
	"bitbucket.org/mmdatafocus/conformity_backend/workflow"
)

type ExportController struct {
	Engine *workflow.Engine
}

func NewExportController(engine *workflow.Engine) *ExportController {
	return &ExportController{Engine: engine}
}

// ExportCAPARegister streams the register as xlsx, honoring the same filters
// as the list endpoint.
func (ctl *ExportController) ExportCAPARegister(c *gin.Context) {
	var filter models.DeviationFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter"})
		return
	}

	deviations, err := ctl.Engine.ListDeviations(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	stats, err := ctl.Engine.GetCAPAStatistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	f, err := reports.BuildCAPARegister(deviations)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := reports.BuildStatisticsSheet(f, stats); err != nil {
		respondError(c, err)
		return
	}

	filename := "capa-register-" + time.Now().Format("2006-01-02") + ".xlsx"
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename="+filename)
	if err := f.Write(c.Writer); err != nil {
		logger := config.GetLogger()
		config.LogError(logger, "exportController.go", "ExportCAPARegister", "write xlsx", filename, err)
	}
}
