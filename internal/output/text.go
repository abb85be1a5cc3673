package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/nethalo/pgreorg/internal/dispatch"
	"github.com/nethalo/pgreorg/internal/reorg"
)

// TextRenderer produces Lip Gloss styled terminal output.
type TextRenderer struct {
	w io.Writer
}

func (r *TextRenderer) RenderReport(report dispatch.Report) {
	width := 60
	fmt.Fprintln(r.w)

	header := TitleStyle.Render("pgreorg — Run Summary")
	fmt.Fprintln(r.w, header)

	for _, db := range report.Databases {
		r.renderDatabase(db, width)
	}

	fmt.Fprintln(r.w)
}

func (r *TextRenderer) renderDatabase(db dispatch.DatabaseReport, width int) {
	title := TitleStyle.Render(fmt.Sprintf("Database: %s", db.Database))

	if db.Skipped {
		box := WarningBoxStyle.Width(width).Render(title + "\n" + WarningText.Render(IconWarning+" skipped") + " — " + db.SkipReason)
		fmt.Fprintln(r.w, box)
		return
	}

	if len(db.Results) == 0 {
		box := BoxStyle.Width(width).Render(title + "\n" + MutedText.Render("no eligible tables"))
		fmt.Fprintln(r.w, box)
		return
	}

	var lines []string
	for _, res := range db.Results {
		lines = append(lines, r.tableLine(res))
	}
	style := SafeBoxStyle
	for _, res := range db.Results {
		if res.Failed() {
			style = DangerBoxStyle
			break
		}
	}
	box := style.Width(width).Render(title + "\n" + strings.Join(lines, "\n"))
	fmt.Fprintln(r.w, box)
}

func (r *TextRenderer) tableLine(res reorg.TableResult) string {
	icon := IconSafe
	status := SafeText.Render("ok")
	if res.Failed() {
		icon = IconDanger
		msg := "aborted"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		status = DangerText.Render(msg)
	}
	return fmt.Sprintf("%s %s %s (%s, %s)", icon, LabelStyle.Render(res.Table), status, res.Phase, res.Duration.Round(10_000_000))
}

func (r *TextRenderer) RenderConnection(info ConnectionInfo) {
	width := 60
	fmt.Fprintln(r.w)

	var lines []string
	lines = append(lines, r.labelValue("Connected to:", info.Address))
	lines = append(lines, r.labelValue("Server version:", info.ServerVersion))
	lines = append(lines, r.labelValue("Extension installed:", fmt.Sprintf("%v", info.ExtensionInstalled)))
	lines = append(lines, r.labelValue("Databases:", fmt.Sprintf("%d", len(info.ConnectableDatabases))))

	style := SafeBoxStyle
	if !info.ExtensionInstalled {
		style = WarningBoxStyle
	}

	title := TitleStyle.Render("pgreorg — Connection Info")
	box := style.Width(width).Render(title + "\n" + strings.Join(lines, "\n"))
	fmt.Fprintln(r.w, box)
	fmt.Fprintln(r.w)
}

func (r *TextRenderer) labelValue(label, value string) string {
	return LabelStyle.Render(label) + " " + ValueStyle.Render(value)
}
