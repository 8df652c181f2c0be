package main

import (
	"context"
	"fmt"

	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/chorusdev/chorus/internal/chorus/derived"
	"github.com/chorusdev/chorus/internal/chorus/types"
	"github.com/chorusdev/chorus/internal/config"
	"github.com/chorusdev/chorus/internal/store/sqlite"
)

var (
	statusStyle    = lipgloss.NewStyle().Bold(true)
	readinessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	pointsStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect tasks",
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Render a task's current state and context for a human operator",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

func init() {
	taskCmd.AddCommand(taskShowCmd)
	rootCmd.AddCommand(taskCmd)
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := config.New()
	if err != nil {
		return err
	}
	db, err := sqlite.Open(ctx, cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	node, err := db.LoadSubtree(ctx, args[0], 1)
	if err != nil {
		return fmt.Errorf("loading task %s: %w", args[0], err)
	}
	task := derived.Enrich(node, time.Now())

	fmt.Println(renderTaskHeader(task))
	if task.Description != "" {
		fmt.Println(renderMarkdown(task.Description))
	}
	if task.Context != "" {
		fmt.Println(lipgloss.NewStyle().Bold(true).Render("Context"))
		fmt.Println(renderMarkdown(task.Context))
	}
	return nil
}

func renderTaskHeader(t types.EnrichedTask) string {
	points := "unsized"
	if t.EffectivePoints != nil {
		points = fmt.Sprintf("%d pts", *t.EffectivePoints)
	}
	return fmt.Sprintf("%s  %s  %s  %s",
		statusStyle.Render(string(t.Status)),
		readinessStyle.Render(string(t.Readiness)),
		pointsStyle.Render(points),
		t.Name,
	)
}

func renderMarkdown(src string) string {
	out, err := glamour.Render(src, "dark")
	if err != nil {
		return src
	}
	return out
}
