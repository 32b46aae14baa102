// Package render turns the long-lived form state into plain-text tables for
// the terminal front end. Colors follow the server's status buckets.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"github.com/scanwork/scanwork/internal/protocol"
	"github.com/scanwork/scanwork/internal/services"
)

func statusPainter(status string) *color.Color {
	switch protocol.EffectiveStatus(status) {
	case protocol.StatusClosed:
		return color.New(color.FgGreen)
	case protocol.StatusPending:
		return color.New(color.FgYellow)
	case protocol.StatusWarning:
		return color.New(color.FgHiYellow, color.Bold)
	case protocol.StatusError:
		return color.New(color.FgRed, color.Bold)
	case protocol.StatusNote:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgWhite)
	}
}

func paintStatus(status, text string) string {
	if text == "" {
		return ""
	}
	return statusPainter(status).Sprint(text)
}

func header(text string) string {
	return color.New(color.Bold, color.Underline).Sprint(text)
}

// TaskList writes the task list form.
func TaskList(w io.Writer, state services.TaskListState) {
	fmt.Fprintln(w, header("Задания"))

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 60
	for _, task := range state.Tasks {
		tbl.AddRow(color.New(color.Bold).Sprint(task.Name), "", "")
		for _, o := range task.Orders {
			comment := o.Comment1
			if o.Comment2 != "" {
				if comment != "" {
					comment += " / "
				}
				comment += o.Comment2
			}
			tbl.AddRow("  "+o.Name, comment, paintStatus(o.Status, orDefault(o.Status, "todo")))
		}
	}
	fmt.Fprintln(w, tbl)

	if len(state.ActionButtons) > 0 {
		fmt.Fprintln(w, buttonsLine(state.ActionButtons))
	}
	if !state.LastUpdatedAt.IsZero() {
		fmt.Fprintf(w, "Обновлено: %s\n", state.LastUpdatedAt.Format("15:04:05"))
	}
}

// Document writes the document form.
func Document(w io.Writer, state services.DocumentState) {
	if state.HeaderText != "" {
		fmt.Fprintln(w, header(state.HeaderText))
	}
	if state.StatusText != "" {
		fmt.Fprintln(w, paintStatus(state.Status, state.StatusText))
	}

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 60
	for _, it := range state.Items {
		marker := " "
		if it.ID == state.SelectedID && state.SelectedID != "" {
			marker = ">"
		}
		tbl.AddRow(marker, it.Name, paintStatus(it.Status, it.StatusText))
	}
	fmt.Fprintln(w, tbl)

	if len(state.ActionButtons) > 0 {
		fmt.Fprintln(w, buttonsLine(state.ActionButtons))
	}
}

// Position writes the position form; item rows carry the scanned code text.
func Position(w io.Writer, state services.PositionState) {
	if state.HeaderText != "" {
		fmt.Fprintln(w, header(state.HeaderText))
	}
	if state.StatusText != "" {
		fmt.Fprintln(w, paintStatus(state.Status, state.StatusText))
	}

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 60
	for _, it := range state.Items {
		marker := " "
		if it.ID == state.SelectedID && state.SelectedID != "" {
			marker = ">"
		}
		tbl.AddRow(marker, it.Name, it.Text, paintStatus(it.Status, it.StatusText))
	}
	fmt.Fprintln(w, tbl)

	if len(state.ActionButtons) > 0 {
		fmt.Fprintln(w, buttonsLine(state.ActionButtons))
	}
}

// Select writes a server-driven select page.
func Select(w io.Writer, req protocol.SelectRequest) {
	if req.HeaderText != "" {
		fmt.Fprintln(w, header(req.HeaderText))
	}
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 60
	for i, it := range req.Items {
		line := it.Name
		if it.Comment != "" {
			line += " (" + it.Comment + ")"
		}
		tbl.AddRow(fmt.Sprintf("%d.", i+1), line, paintStatus(it.Status, it.Status))
	}
	fmt.Fprintln(w, tbl)
}

// Dialog writes a server-driven modal with its button row.
func Dialog(w io.Writer, req protocol.DialogRequest) {
	if req.Header != "" {
		fmt.Fprintln(w, header(req.Header))
	}
	if req.Text != "" {
		fmt.Fprintln(w, req.Text)
	}
	if len(req.Buttons) > 0 {
		names := make([]string, 0, len(req.Buttons))
		for _, b := range req.Buttons {
			names = append(names, "["+b.Name+"]")
		}
		fmt.Fprintln(w, strings.Join(names, " "))
	}
}

func buttonsLine(buttons []protocol.ActionButton) string {
	names := make([]string, 0, len(buttons))
	for _, b := range buttons {
		name := b.Name
		if name == "" {
			name = b.ID
		}
		names = append(names, "["+name+"]")
	}
	return strings.Join(names, " ")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
