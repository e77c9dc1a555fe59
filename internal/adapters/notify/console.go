package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implements ports.Alerter on stdout and renders portfolio tables
// for the periodic status report.
type Console struct {
	out io.Writer
}

// NewConsole creates an alerter that writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates an alerter for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Alert prints one line per alert, compact enough to scan in a terminal.
func (c *Console) Alert(_ context.Context, level domain.AlertLevel, title, message string, metadata map[string]string) error {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "[%s] %s %s: %s", now, levelIcon(level), title, message)
	for _, k := range sortedKeys(metadata) {
		fmt.Fprintf(c.out, " %s=%s", k, metadata[k])
	}
	fmt.Fprintln(c.out)
	return nil
}

// PrintPortfolio renders the full portfolio status: header, per-pair table
// and risk summary.
func (c *Console) PrintPortfolio(snap domain.PortfolioSnapshot) {
	now := snap.TakenAt.Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] portfolio %s | capital $%.2f (allocated $%.2f, free $%.2f)\n",
		now, snap.Status, snap.TotalCapital, snap.AllocatedCapital, snap.AvailableCapital)
	if snap.PauseReason != "" {
		fmt.Fprintf(c.out, "  PAUSED: %s\n", snap.PauseReason)
	}

	if len(snap.Pairs) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Pair", "Status", "Price", "Position", "Avg Entry", "Realized", "Unrealized", "Trades", "Orders")
		for _, p := range snap.Pairs {
			table.Append(
				p.Symbol,
				string(p.Status),
				fmt.Sprintf("%.4f", p.CurrentPrice),
				fmt.Sprintf("%.6f", p.PositionSize),
				fmt.Sprintf("%.4f", p.AvgEntryPrice),
				fmt.Sprintf("$%.4f", p.RealizedPnl),
				fmt.Sprintf("$%.4f", p.UnrealizedPnl),
				fmt.Sprintf("%d", p.TradesCount),
				fmt.Sprintf("%d", p.OpenOrders),
			)
		}
		table.Render()
	}

	r := snap.Risk
	fmt.Fprintf(c.out, "  risk: daily $%.2f (%.2f%%) | drawdown %.2f%% | vol %.4f | sharpe %.2f | div %.2f | losses %d | orders %d\n",
		r.DailyPnl, r.DailyPnlPct, r.DrawdownPct, r.Volatility, r.Sharpe,
		r.Diversification, r.ConsecutiveLosses, r.OpenOrders)

	c.printCorrelations(snap.Symbols, snap.Correlations)
}

// printCorrelations renders the pairwise matrix when there is more than one
// symbol to correlate. Rows and columns align with symbols.
func (c *Console) printCorrelations(symbols []string, matrix [][]float64) {
	if len(symbols) < 2 || len(matrix) != len(symbols) {
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header(toRow(append([]string{"corr"}, symbols...))...)
	for i, row := range symbols {
		cells := []string{row}
		for j := range symbols {
			cells = append(cells, fmt.Sprintf("%.2f", matrix[i][j]))
		}
		table.Append(toRow(cells)...)
	}
	table.Render()
}

func levelIcon(level domain.AlertLevel) string {
	switch level {
	case domain.AlertCritical:
		return "!!"
	case domain.AlertWarning:
		return ">>"
	case domain.AlertSuccess:
		return "OK"
	default:
		return "--"
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toRow(cells []string) []any {
	out := make([]any, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}
