package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show fix item counts by working status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	m, err := openManager(cfg, false)
	if err != nil {
		return err
	}
	defer m.Close()

	counts, err := m.FixItems().CountByStatus(cmd.Context())
	if err != nil {
		return err
	}

	byStatus := make(map[state.WorkingStatus]int64, len(counts))
	var total int64
	for _, c := range counts {
		byStatus[c.WorkingStatus] = c.Count
		total += c.Count
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Status", "Count"})
	for _, status := range state.AllStatuses {
		t.AppendRow(table.Row{colorStatus(status), byStatus[status]})
	}
	t.AppendFooter(table.Row{"TOTAL", total})
	t.SetStyle(table.StyleLight)
	t.Render()

	if remaining := total - byStatus[state.StatusComplete]; remaining > 0 {
		fmt.Println(color.YellowString("%d items not yet complete", remaining))
	} else if total > 0 {
		fmt.Println(color.GreenString("all items complete"))
	}
	return nil
}

func colorStatus(status state.WorkingStatus) string {
	name := status.String()
	switch {
	case status == state.StatusComplete:
		return color.GreenString(name)
	case status == state.StatusBeforeProcess:
		return name
	default:
		return color.RedString(name)
	}
}
