package ui

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/polysentry/tracker/internal/model"
)

// TradeTapeView displays the scrolling feed of live trades.
type TradeTapeView struct {
	table   *tview.Table
	trades  []model.Trade
	maxRows int
}

var tapeHeaders = []string{"Time", "Market", "Side", "Price", "Value"}

// NewTradeTapeView creates the trade tape panel.
func NewTradeTapeView() *TradeTapeView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Live Trades ").SetBorder(true)

	v := &TradeTapeView{
		table:   table,
		trades:  make([]model.Trade, 0, 100),
		maxRows: 100,
	}
	v.setHeader()
	return v
}

// Widget returns the tview primitive.
func (v *TradeTapeView) Widget() tview.Primitive {
	return v.table
}

// AddTrade prepends a trade to the tape.
func (v *TradeTapeView) AddTrade(trade model.Trade) {
	v.trades = append([]model.Trade{trade}, v.trades...)
	if len(v.trades) > v.maxRows {
		v.trades = v.trades[:v.maxRows]
	}
	v.updateTable()
}

// Refresh redraws the tape.
func (v *TradeTapeView) Refresh() {
	v.updateTable()
}

func (v *TradeTapeView) setHeader() {
	for col, header := range tapeHeaders {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		v.table.SetCell(0, col, cell)
	}
}

func (v *TradeTapeView) updateTable() {
	v.table.Clear()
	v.setHeader()

	for i, trade := range v.trades {
		row := i + 1

		market := trade.MarketID
		if len(market) > 16 {
			market = market[:8] + "..." + market[len(market)-4:]
		}

		side := string(trade.Side)
		if side == "" {
			side = "?"
		}

		value := "-"
		if trade.USDValue > 0 {
			value = fmt.Sprintf("$%.0f", trade.USDValue)
		}

		cells := []string{
			trade.Timestamp.Format("15:04:05"),
			market,
			side,
			fmt.Sprintf("%.3f", trade.Price),
			value,
		}
		for col, text := range cells {
			v.table.SetCell(row, col, tview.NewTableCell(text).SetAlign(tview.AlignLeft))
		}
	}

	v.table.SetTitle(fmt.Sprintf(" Live Trades (%d) ", len(v.trades)))
}
