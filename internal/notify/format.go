package notify

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"signal-lab/internal/domain"
)

// FormatSignal renders sig as a Telegram HTML message.
func FormatSignal(sig *domain.Signal) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<b>%s %s</b> (%s)\n", sig.Direction, html.EscapeString(sig.Symbol), html.EscapeString(sig.StrategyID))
	fmt.Fprintf(&b, "Entry: <code>%s</code>\n", formatPrice(sig.EntryPrice))
	for i, t := range sig.Targets {
		fmt.Fprintf(&b, "TP%d: <code>%s</code>\n", i+1, formatPrice(t))
	}
	fmt.Fprintf(&b, "Stop: <code>%s</code>\n", formatPrice(sig.StopLoss))
	fmt.Fprintf(&b, "Confidence: %.0f%% | Leverage: %dx", sig.Confidence*100, sig.Leverage)
	if sig.MLScore != nil {
		fmt.Fprintf(&b, "\nML score: %.2f", *sig.MLScore)
	}
	if sig.Context.Tier != "" {
		fmt.Fprintf(&b, "\nTier: %s", html.EscapeString(sig.Context.Tier))
	}
	fmt.Fprintf(&b, "\n<i>%s</i>", sig.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	return b.String()
}

// FormatSignalLine renders sig on one line for logs.
func FormatSignalLine(sig *domain.Signal) string {
	targets := make([]string, len(sig.Targets))
	for i, t := range sig.Targets {
		targets[i] = formatPrice(t)
	}
	return fmt.Sprintf("%s %s %s entry=%s targets=[%s] stop=%s conf=%.2f lev=%dx at=%s",
		sig.StrategyID, sig.Direction, sig.Symbol,
		formatPrice(sig.EntryPrice), strings.Join(targets, " "), formatPrice(sig.StopLoss),
		sig.Confidence, sig.Leverage, sig.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"))
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
