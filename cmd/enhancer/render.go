package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"product-enhancer/internal/prompts"
	"product-enhancer/pkg/api"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	statusColors = map[api.TaskStatus]lipgloss.Color{
		api.TaskPending:    lipgloss.Color("11"),
		api.TaskProcessing: lipgloss.Color("12"),
		api.TaskCompleted:  lipgloss.Color("10"),
		api.TaskError:      lipgloss.Color("9"),
	}
)

const (
	cellWidth  = 24
	idWidth    = 38
	nameWidth  = 32
	stateWidth = 12
)

func statusStyle(status api.TaskStatus) lipgloss.Style {
	style := lipgloss.NewStyle()
	if color, ok := statusColors[status]; ok {
		style = style.Foreground(color)
	}
	return style
}

func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}

func cell(s string, width int) string {
	return lipgloss.NewStyle().Width(width).Render(truncate(s, width-1))
}

func renderPreview(w io.Writer, preview *api.PreviewResponse) {
	fmt.Fprintf(w, "%s (%d columns)\n\n", preview.Filename, len(preview.Columns))

	var header strings.Builder
	for _, col := range preview.Columns {
		header.WriteString(cell(col, cellWidth))
	}
	fmt.Fprintln(w, headerStyle.Render(header.String()))

	for _, row := range preview.Rows {
		var line strings.Builder
		for i := range preview.Columns {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			line.WriteString(cell(value, cellWidth))
		}
		fmt.Fprintln(w, line.String())
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func renderTasks(w io.Writer, tasks []api.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no tasks"))
		return
	}

	fmt.Fprintln(w, headerStyle.Render(cell("ID", idWidth)+cell("FILE", nameWidth)+cell("STATUS", stateWidth)+cell("PROGRESS", 10)+"CREATED"))
	for _, task := range tasks {
		fmt.Fprintln(w,
			cell(task.ID, idWidth)+
				cell(task.Filename, nameWidth)+
				statusStyle(task.Status).Render(cell(string(task.Status), stateWidth))+
				cell(fmt.Sprintf("%d%%", task.Progress), 10)+
				formatTime(task.CreatedAt),
		)
	}
}

func renderTask(w io.Writer, task *api.Task, downloadURL string) {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("task"), task.ID)
	fmt.Fprintf(w, "  file:      %s\n", task.Filename)
	fmt.Fprintf(w, "  status:    %s\n", statusStyle(task.Status).Render(string(task.Status)))
	fmt.Fprintf(w, "  progress:  %d%%\n", task.Progress)
	fmt.Fprintf(w, "  created:   %s\n", formatTime(task.CreatedAt))
	fmt.Fprintf(w, "  updated:   %s\n", formatTime(task.UpdatedAt))
	if task.CompletedAt != nil {
		fmt.Fprintf(w, "  completed: %s\n", formatTime(*task.CompletedAt))
	}
	if task.Config != nil {
		fmt.Fprintf(w, "  columns:   %s\n", strings.Join(task.Config.TextColumns, ", "))
		fmt.Fprintf(w, "  attributes: %s\n", strings.Join(task.Config.Attributes, ", "))
		fmt.Fprintf(w, "  provider:  %s\n", task.Config.Provider)
	}
	if task.ErrorMessage != "" {
		fmt.Fprintf(w, "  error:     %s\n", errorStyle.Render(task.ErrorMessage))
	}
	if downloadURL != "" {
		fmt.Fprintf(w, "  download:  %s\n", downloadURL)
	}
}

// renderSynthesis reports a prompt generation run. A run that wrote nothing is
// reported as a failure even when the provider answered.
func renderSynthesis(w io.Writer, result *prompts.Result) {
	if !result.Succeeded() {
		fmt.Fprintln(w, errorStyle.Render("prompt generation produced no instructions"))
	}
	fmt.Fprintln(w, result.Summary())
	for _, attr := range result.Missing {
		fmt.Fprintf(w, "  %s\n", mutedStyle.Render(attr+": no instruction"))
	}
}

// redrawTasks clears the terminal before rendering the list.
func redrawTasks(w io.Writer, tasks []api.Task) {
	termenv.NewOutput(w).ClearScreen()
	renderTasks(w, tasks)
}
