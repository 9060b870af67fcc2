package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/polysentry/tracker/internal/model"
)

// AlertFeedView displays the rolling feed of detection alerts, newest first.
type AlertFeedView struct {
	list     *tview.List
	alerts   []model.Alert
	maxItems int
}

// NewAlertFeedView creates the alert feed panel.
func NewAlertFeedView() *AlertFeedView {
	list := tview.NewList().
		ShowSecondaryText(true)

	list.SetTitle(" Alerts ").SetBorder(true)
	list.SetMainTextColor(tcell.ColorWhite)

	return &AlertFeedView{
		list:     list,
		alerts:   make([]model.Alert, 0, 50),
		maxItems: 50,
	}
}

// Widget returns the tview primitive.
func (v *AlertFeedView) Widget() tview.Primitive {
	return v.list
}

// AddAlert prepends an alert to the feed.
func (v *AlertFeedView) AddAlert(alert model.Alert) {
	v.alerts = append([]model.Alert{alert}, v.alerts...)
	if len(v.alerts) > v.maxItems {
		v.alerts = v.alerts[:v.maxItems]
	}
	v.rebuild()
}

// Refresh redraws the feed.
func (v *AlertFeedView) Refresh() {
	v.rebuild()
}

func (v *AlertFeedView) rebuild() {
	v.list.Clear()

	if len(v.alerts) == 0 {
		v.list.AddItem("No alerts yet", "", 0, nil)
		return
	}

	for _, alert := range v.alerts {
		main, secondary := formatAlertItem(alert)
		v.list.AddItem(main, secondary, 0, nil)
	}

	v.list.SetTitle(fmt.Sprintf(" Alerts (%d) ", len(v.alerts)))
}

// formatAlertItem builds the two display lines for one alert. The severity
// tag uses tview color markup.
func formatAlertItem(alert model.Alert) (string, string) {
	color := severityColor(alert.Severity)
	timeStr := alert.Timestamp.Format("15:04:05")

	main := fmt.Sprintf("%s [%s]%s[-] %s", timeStr, color, alert.Severity, alert.SignalType)

	question := alert.Market.Question
	if len(question) > 60 {
		question = question[:57] + "..."
	}
	secondary := question
	if len(alert.Wallets) > 0 {
		secondary = fmt.Sprintf("%s | %d wallet(s)", question, len(alert.Wallets))
	}
	return main, secondary
}

func severityColor(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "red"
	case model.SeverityHigh:
		return "orange"
	case model.SeverityMedium:
		return "yellow"
	default:
		return "white"
	}
}
