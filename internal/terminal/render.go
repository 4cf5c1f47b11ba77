package terminal

import (
	"fmt"
	"io"
	"strings"

	"github.com/childhealth/handbookscan/internal/models"
	"github.com/childhealth/handbookscan/internal/poller"
	"github.com/childhealth/handbookscan/internal/review"
)

// ProgressText is the one-line OCR progress indicator
func ProgressText(p poller.Progress) string {
	if p.Done() {
		return fmt.Sprintf("全部完成 %d/%d", p.Total, p.Total)
	}
	return fmt.Sprintf("處理中 %d/%d...", p.Completed, p.Total)
}

// RenderQueue lists the pages of the display queue
func RenderQueue(w io.Writer, queue []models.Page, current int64) {
	if len(queue) == 0 {
		fmt.Fprintln(w, "（尚無頁面）")
		return
	}
	for _, p := range queue {
		marker := " "
		if p.ID == current {
			marker = ">"
		}
		fmt.Fprintf(w, "%s 第 %d 頁  #%d  %s  %s\n", marker, p.Order, p.ID, p.Type.Label(), p.Status.Label())
	}
}

// RenderView prints the review form for one page
func RenderView(w io.Writer, v review.View) {
	fmt.Fprintf(w, "== 頁面 #%d  %s ==\n", v.PageID, v.PageType.Label())
	for _, warning := range v.Warnings {
		fmt.Fprintf(w, "! %s\n", warning)
	}

	switch v.Kind {
	case review.KindUnparsed:
		fmt.Fprintln(w, review.UnparsedMessage)
	case review.KindRaw:
		fmt.Fprintln(w, v.Raw)
	case review.KindForm:
		switch {
		case v.ParentRecord != nil:
			renderParentRecord(w, v.ParentRecord)
		case v.HealthEducation != nil:
			renderHealthEducation(w, v.HealthEducation)
		}
	}
}

func renderVisit(w io.Writer, visit int, label, date string) {
	var parts []string
	if visit > 0 {
		parts = append(parts, fmt.Sprintf("第%d次", visit))
	}
	if label != "" {
		parts = append(parts, label)
	}
	if date != "" {
		parts = append(parts, date)
	}
	if len(parts) > 0 {
		fmt.Fprintln(w, strings.Join(parts, "  "))
	}
}

func renderParentRecord(w io.Writer, v *review.ParentRecordView) {
	renderVisit(w, v.VisitNumber, v.AgeStageLabel, v.RecordDate)
	for i, item := range v.Items {
		warning := ""
		if item.Warning {
			warning = "※"
		}
		answer := string(item.Selected)
		if answer == "" {
			answer = "　"
		}
		fmt.Fprintf(w, "%3d. [%s] %s%s (%s)\n", i+1, answer, warning, item.Question, item.Category)
	}
	if v.Notes != nil && *v.Notes != "" {
		fmt.Fprintf(w, "家長備註：%s\n", *v.Notes)
	}
}

func checkbox(b bool) string {
	if b {
		return "x"
	}
	return " "
}

func renderHealthEducation(w io.Writer, v *review.HealthEducationView) {
	renderVisit(w, v.VisitNumber, v.AgeStageLabel, v.GuidanceDate)
	if len(v.Assessments) > 0 {
		fmt.Fprintln(w, "家長評估：")
		for i, a := range v.Assessments {
			fmt.Fprintf(w, "%3d. [%s] %s\n", i+1, checkbox(a.Done), a.Topic)
		}
	}
	if len(v.Guidance) > 0 {
		fmt.Fprintln(w, "醫師指導重點：")
		for i, section := range v.Guidance {
			fmt.Fprintf(w, "  %d. %s／%s\n", i+1, section.Topic, section.KeyPoint)
			for j, item := range section.Items {
				fmt.Fprintf(w, "     %d.%d [%s] %s\n", i+1, j+1, checkbox(item.Checked), item.Content)
			}
		}
	}
	fmt.Fprintf(w, "醫療院所：%s\n", v.HospitalCode)
	fmt.Fprintf(w, "醫師：%s\n", v.DoctorName)
}
