package notify

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/xela07ax/closegate-platform/internal/domain"
)

// Цвета заголовка письма по серьезности события.
const (
	colorCritical = "#C0392B"
	colorSuccess  = "#27AE60"
	colorWarning  = "#E67E22"
)

// Единый HTML-шаблон всех уведомлений: цветная плашка, одна строка
// резюме, таблица POV-контекста, опциональный блок деталей, фиксированный футер.
const emailBody = `<!DOCTYPE html>
<html>
<body style="margin:0;padding:0;font-family:Segoe UI,Arial,sans-serif;background:#F4F6F8;">
<div style="max-width:640px;margin:16px auto;background:#FFFFFF;border:1px solid #D8DEE4;">
  <div style="background:{{.Color}};color:#FFFFFF;padding:12px 20px;font-size:17px;font-weight:bold;">{{.Title}}</div>
  <div style="padding:18px 20px;">
    <p style="margin:0 0 14px 0;font-size:14px;color:#1F2A36;">{{.Summary}}</p>
    <table style="border-collapse:collapse;font-size:13px;color:#1F2A36;">
      <tr><td style="padding:3px 14px 3px 0;color:#5B6B7B;">Scenario</td><td>{{.Scenario}}</td></tr>
      <tr><td style="padding:3px 14px 3px 0;color:#5B6B7B;">Period</td><td>{{.Period}}</td></tr>
      <tr><td style="padding:3px 14px 3px 0;color:#5B6B7B;">Entity</td><td>{{.Entity}}</td></tr>
      <tr><td style="padding:3px 14px 3px 0;color:#5B6B7B;">Time (UTC)</td><td>{{.Timestamp}}</td></tr>
    </table>
    {{if .Details}}
    <div style="margin-top:14px;padding:10px 14px;background:#F8F9FA;border-left:3px solid {{.Color}};font-size:13px;">
      {{range .Details}}<div style="margin:2px 0;">{{.}}</div>{{end}}
    </div>
    {{end}}
  </div>
  <div style="padding:10px 20px;background:#F4F6F8;color:#8295A7;font-size:11px;">
    Automated message from the financial close platform. Do not reply.
  </div>
</div>
</body>
</html>`

var emailTemplate = template.Must(template.New("notification").Parse(emailBody))

type templateData struct {
	Color     string
	Title     string
	Summary   string
	Scenario  string
	Period    string
	Entity    string
	Timestamp string
	Details   []string
}

// describe подбирает заголовок, резюме, цвет и детали под вид события.
func describe(ev domain.NotificationEvent) (title, summary, color string, details []string) {
	pov := ev.POV
	where := fmt.Sprintf("%s %s (%s)", pov.Entity, pov.Period, pov.Scenario)

	switch ev.Kind {
	case domain.EventSubmission:
		title = "Submission received: " + where
		summary = fmt.Sprintf("Entity %s submitted period %s for review.", pov.Entity, pov.Period)
		color = colorSuccess
	case domain.EventApproval:
		title = "Submission approved: " + where
		summary = fmt.Sprintf("Period data for %s %s was approved.", pov.Entity, pov.Period)
		color = colorSuccess
	case domain.EventRejection:
		title = "Submission blocked: " + where
		summary = fmt.Sprintf("The attempted workflow transition for %s %s was rejected.", pov.Entity, pov.Period)
		color = colorCritical
		details = splitLines(ev.Fields["reasons"])
	case domain.EventDataQuality:
		title = "Data quality failure: " + where
		summary = fmt.Sprintf("Data quality validation for %s %s finished with critical findings.", pov.Entity, pov.Period)
		color = colorCritical
		details = splitLines(ev.Fields["failures"])
	case domain.EventICMismatch:
		title = "Intercompany mismatch: " + where
		summary = fmt.Sprintf("Intercompany reconciliation for %s %s found balances out of tolerance.", pov.Entity, pov.Period)
		color = colorCritical
		details = splitLines(ev.Fields["summary"])
	case domain.EventBudgetAlert:
		title = "Budget variance alert: " + where
		summary = fmt.Sprintf("Material variances against Budget detected for %s %s.", pov.Entity, pov.Period)
		color = colorWarning
		details = splitLines(ev.Fields["alerts"])
	default:
		title = "Close platform notification: " + where
		summary = "Event " + string(ev.Kind)
		color = colorWarning
	}
	return title, summary, color, details
}

// renderHTML собирает тему и тело письма для события.
func renderHTML(ev domain.NotificationEvent) (subject, body string, err error) {
	title, summary, color, details := describe(ev)

	data := templateData{
		Color:     color,
		Title:     title,
		Summary:   summary,
		Scenario:  ev.POV.Scenario,
		Period:    ev.POV.Period,
		Entity:    ev.POV.Entity,
		Timestamp: time.Now().UTC().Format("2006-01-02 15:04:05"),
		Details:   details,
	}

	var b strings.Builder
	if err := emailTemplate.Execute(&b, data); err != nil {
		return "", "", fmt.Errorf("render notification template: %w", err)
	}
	return title, b.String(), nil
}

// card строит короткую карточку для чат-вебхука: без HTML, только суть.
func card(ev domain.NotificationEvent) map[string]interface{} {
	title, summary, color, details := describe(ev)
	payload := map[string]interface{}{
		"title":    title,
		"summary":  summary,
		"color":    color,
		"kind":     string(ev.Kind),
		"scenario": ev.POV.Scenario,
		"period":   ev.POV.Period,
		"entity":   ev.POV.Entity,
	}
	if len(details) > 0 {
		payload["details"] = details
	}
	return payload
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
