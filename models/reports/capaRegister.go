package reports

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/conformity_backend/models"
	"bitbucket.org/mmdatafocus/conformity_backend/utils"
)

const registerSheet = "CAPA Register"

var registerHeadings = []string{
	"Number", "Title", "Type", "Severity", "Status",
	"Discovered", "Discovered By", "Recipe", "Batch",
	"Root Cause", "Corrective Actions", "Preventive Actions",
	"Checks Performed", "Checks Total", "Closed At",
}

// BuildCAPARegister renders the deviation register auditors ask for during
// ISO 9001 surveillance: one row per deviation, workflow state flattened.
func BuildCAPARegister(deviations []*models.Deviation) (*excelize.File, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(registerSheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	for i, h := range registerHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(registerSheet, cell, h); err != nil {
			return nil, err
		}
	}

	for row, d := range deviations {
		rootCause := ""
		if d.RootCauseAnalysis != nil {
			rootCause = d.RootCauseAnalysis.RootCause
		}
		performed := 0
		for i := range d.EffectivenessChecks {
			if d.EffectivenessChecks[i].Performed() {
				performed++
			}
		}
		closedAt := ""
		if d.Closure != nil {
			closedAt = d.Closure.ClosedAt.Format("2006-01-02")
		}
		recipe := ""
		if d.RecipeId != nil {
			recipe = fmt.Sprint(*d.RecipeId)
		}

		values := []interface{}{
			d.DeviationNumber,
			d.Title,
			string(d.Type),
			string(d.Severity),
			string(d.Status),
			d.DiscoveredDate.Format("2006-01-02"),
			d.DiscoveredBy,
			recipe,
			utils.DereferencePtr(d.BatchId, ""),
			rootCause,
			len(d.CorrectiveActions),
			len(d.PreventiveActions),
			performed,
			len(d.EffectivenessChecks),
			closedAt,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(registerSheet, cell, v); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

// BuildStatisticsSheet appends the dashboard numbers as a second sheet.
func BuildStatisticsSheet(f *excelize.File, stats *models.CAPAStatistics) error {
	const sheet = "Statistics"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	rows := [][]interface{}{
		{"Total deviations", stats.TotalDeviations},
		{"Critical", stats.BySeverity[models.DeviationSeverityCritical]},
		{"Major", stats.BySeverity[models.DeviationSeverityMajor]},
		{"Minor", stats.BySeverity[models.DeviationSeverityMinor]},
		{"Observation", stats.BySeverity[models.DeviationSeverityObservation]},
		{"Checks effective", stats.ChecksEffective},
		{"Checks partially effective", stats.ChecksPartiallyEffective},
		{"Checks not effective", stats.ChecksNotEffective},
		{"Checks pending", stats.ChecksPending},
		{"Average closure days", stats.AverageClosureDays},
		{"Overdue actions", stats.OverdueActions},
		{"Overdue effectiveness checks", stats.OverdueEffectivenessChecks},
	}
	for i, r := range rows {
		labelCell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		valueCell, err := excelize.CoordinatesToCellName(2, i+1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, labelCell, r[0]); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, valueCell, r[1]); err != nil {
			return err
		}
	}
	return nil
}
