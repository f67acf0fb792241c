package notifier

import (
	"fmt"
	"html"
	"strings"

	"ZakatSentinel/internal/hijri"
	"ZakatSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// Report is everything a monthly verdict message shows.
type Report struct {
	Observation    model.Observation
	Balances       []model.SourceBalance
	Threshold      model.ThresholdSnapshot
	Verdict        model.Verdict
	RequiredMonths int
	Currency       string
}

// FormatVerdictReport formats one run's verdict into a Telegram message.
func FormatVerdictReport(r Report) string {
	var b strings.Builder
	cur := html.EscapeString(r.Currency)

	title := "Zakat Report"
	if r.Verdict.LevyDue {
		title = "Zakat Due Now"
	}
	b.WriteString(fmt.Sprintf("🕌 <b>%s</b> | %s\n", title, r.Observation.Hijri))
	b.WriteString(fmt.Sprintf("Statement date: %s\n\n", r.Observation.Date.Format("02.01.2006")))

	if len(r.Balances) > 0 {
		b.WriteString("📊 <b>Balances:</b>\n")
		for _, sb := range r.Balances {
			if sb.Currency != "" && sb.Currency != cur {
				b.WriteString(fmt.Sprintf("  %s: %s %s × %s = %s %s\n",
					html.EscapeString(sb.SourceID), sb.Original.StringFixed(2), html.EscapeString(sb.Currency), sb.Rate.String(), sb.Converted.StringFixed(2), cur))
			} else {
				b.WriteString(fmt.Sprintf("  %s: %s %s\n", html.EscapeString(sb.SourceID), sb.Converted.StringFixed(2), cur))
			}
		}
		b.WriteString("  ─────────────────\n")
	}
	b.WriteString(fmt.Sprintf("  Total: %s %s\n\n", r.Verdict.TotalBalance.StringFixed(2), cur))

	b.WriteString(fmt.Sprintf("⚖️ Nisab: %s %s (%s)\n", r.Threshold.Value.StringFixed(2), cur, describeThreshold(r.Threshold)))
	if r.Verdict.IsAboveThreshold {
		b.WriteString("Status: ✅ above nisab\n")
	} else {
		b.WriteString("Status: ❌ below nisab\n")
	}
	b.WriteString(fmt.Sprintf("Consecutive months: %d/%d %s\n",
		r.Verdict.ConsecutiveMonthsAbove, r.RequiredMonths, progressBar(r.Verdict.ConsecutiveMonthsAbove, r.RequiredMonths)))

	if r.Verdict.LevyDue {
		b.WriteString(fmt.Sprintf("\n💰 <b>Zakat due:</b> %s %s\n", r.Verdict.LevyAmount.StringFixed(2), cur))
		b.WriteString("Record the payment with mark-paid once settled.\n")
	} else if r.Verdict.IsAboveThreshold {
		remaining := r.RequiredMonths - r.Verdict.ConsecutiveMonthsAbove
		b.WriteString(fmt.Sprintf("\n%d more lunar month(s) above nisab until zakat is due.\n", remaining))
	}
	return b.String()
}

// FormatHistory lists the stored monthly observations, newest first.
func FormatHistory(entries []model.Observation, payments []model.Payment, threshold decimal.Decimal, currency string) string {
	var b strings.Builder
	currency = html.EscapeString(currency)
	b.WriteString("📅 <b>Balance history</b>\n\n")
	if len(entries) == 0 {
		b.WriteString("No observations recorded yet.\n")
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		mark := "✅"
		if e.Balance.LessThan(threshold) {
			mark = "❌"
		}
		b.WriteString(fmt.Sprintf("%s %s %d: %s %s\n", mark, hijri.MonthName(e.Hijri.Month), e.Hijri.Year, e.Balance.StringFixed(2), currency))
	}
	if len(payments) > 0 {
		last := payments[len(payments)-1]
		b.WriteString(fmt.Sprintf("\nLast payment: %s %s on %s\n", last.Amount.StringFixed(2), currency, last.Date.Format("02.01.2006")))
	}
	return b.String()
}

// FormatFailure formats a run that stopped before a verdict. Error text may
// carry upstream response bodies, so it is escaped for HTML parse mode.
func FormatFailure(stage string, err error) string {
	return fmt.Sprintf("❌ <b>Zakat check failed</b> at %s\n\n%s\n\nNo history was changed.",
		html.EscapeString(strings.ToLower(stage)), html.EscapeString(err.Error()))
}

// Usage lists the chat commands.
func Usage() string {
	return "Available commands:\n• /status - last verdict\n• /history - stored months\n• /run - analyze now"
}

func describeThreshold(t model.ThresholdSnapshot) string {
	if t.Provenance == model.ProvenanceFallback {
		return "configured fallback"
	}
	return "fetched from " + html.EscapeString(t.Source)
}

func progressBar(n, total int) string {
	if total <= 0 {
		return ""
	}
	if n > total {
		n = total
	}
	return "[" + strings.Repeat("■", n) + strings.Repeat("□", total-n) + "]"
}
