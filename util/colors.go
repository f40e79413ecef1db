package util

import (
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/lagrangedao/go-computing-market/internal/models"
)

var (
	FailColor = []tablewriter.Colors{{tablewriter.Bold, tablewriter.FgRedColor}}

	SuccessMsg = color.New(color.FgGreen).SprintFunc()
	WarnMsg    = color.New(color.FgYellow).SprintFunc()
)

// StatusColor is the table cell color of a job status.
func StatusColor(status models.JobStatus) []tablewriter.Colors {
	switch status {
	case models.JobPending:
		return []tablewriter.Colors{{tablewriter.Bold, tablewriter.FgYellowColor}}
	case models.JobActive:
		return []tablewriter.Colors{{tablewriter.Bold, tablewriter.FgGreenColor}}
	case models.JobCompleted:
		return []tablewriter.Colors{{tablewriter.Bold, tablewriter.FgCyanColor}}
	}
	return FailColor
}
