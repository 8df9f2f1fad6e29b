package main

import (
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"peatio/pkg/core"
)

// render prints v as JSON when --json is set, otherwise calls pretty.
func render(v any, pretty func()) error {
	if !jsonOut {
		pretty()
		return nil
	}
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

func dec(d *apd.Decimal) string {
	return d.Text('f')
}

func printTicker(tk *core.Ticker) {
	t := newTable("TICKER " + tk.Market)
	t.AppendRows([]table.Row{
		{"Last", dec(&tk.Last)},
		{"Last (native)", dec(&tk.LastNative)},
		{"Buy", dec(&tk.Buy)},
		{"Sell", dec(&tk.Sell)},
		{"High", dec(&tk.High)},
		{"Low", dec(&tk.Low)},
		{"Volume", dec(&tk.Volume)},
		{"At", tk.Timestamp.Format(time.RFC3339)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 15, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight},
	})
	t.Render()
}

func printOrderBook(book *core.OrderBook) {
	t := newTable("ORDER BOOK " + book.Market)
	t.AppendHeader(table.Row{"Bid amount", "Bid", "Ask", "Ask amount"})
	rows := max(len(book.Bids), len(book.Asks))
	for i := 0; i < rows; i++ {
		row := table.Row{"", "", "", ""}
		if i < len(book.Bids) {
			row[0], row[1] = dec(&book.Bids[i].Amount), dec(&book.Bids[i].Price)
		}
		if i < len(book.Asks) {
			row[2], row[3] = dec(&book.Asks[i].Price), dec(&book.Asks[i].Amount)
		}
		t.AppendRow(row)
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, Align: text.AlignRight, Colors: text.Colors{text.FgGreen}},
		{Number: 3, Align: text.AlignRight, Colors: text.Colors{text.FgRed}},
		{Number: 4, Align: text.AlignRight},
	})
	t.Render()
}

func printCandles(candles []core.Candle) {
	t := newTable("CANDLES")
	t.AppendHeader(table.Row{"Time", "Open", "High", "Low", "Close", "Volume", "VWAP"})
	for _, c := range candles {
		open, high, low, closePrice, volume, vwap := c.Open(), c.High(), c.Low(), c.Close(), c.Volume(), c.VWAP()
		t.AppendRow(table.Row{
			c.Timestamp().Format(time.RFC3339),
			dec(&open), dec(&high), dec(&low), dec(&closePrice), dec(&volume), dec(&vwap),
		})
	}
	t.Render()
}

func printAsset(asset *core.Asset) {
	t := newTable("BALANCES")
	t.AppendHeader(table.Row{"Currency", "Available", "Frozen", "Available (canonical)", "Frozen (canonical)"})
	for i := range asset.Balances {
		b := &asset.Balances[i]
		row := table.Row{b.Currency.Upper(), dec(&b.Available), dec(&b.Frozen), "", ""}
		if !b.AvailableCanonical.IsZero() || !b.FrozenCanonical.IsZero() {
			row[3], row[4] = dec(&b.AvailableCanonical), dec(&b.FrozenCanonical)
		}
		t.AppendRow(row)
	}
	t.Render()
}

func printOrders(orders ...core.Order) {
	t := newTable("ORDERS")
	t.AppendHeader(table.Row{"ID", "Market", "Side", "Type", "Amount", "Price", "Executed", "Avg price", "Status"})
	for i := range orders {
		o := &orders[i]
		t.AppendRow(table.Row{
			o.ID, o.Market, o.Side.String(), o.Type.String(),
			dec(&o.Amount), dec(&o.Price), dec(&o.ExecutedAmount), dec(&o.AvgPrice),
			o.Status.String(),
		})
	}
	t.Render()
}

func printFees(fees *core.FeeSchedule) {
	t := newTable("FEES")
	t.AppendRows([]table.Row{
		{"Transaction", dec(&fees.Transaction)},
		{"Withdrawal", dec(&fees.Withdrawal)},
		{"Deposit", dec(&fees.Deposit)},
	})
	t.Render()
}
