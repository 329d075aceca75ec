package utils

import (
	"log"
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar calculates trading sessions using scmhub/calendar.
// Crypto pairs have no calendar at all: the feed treats them as a 24/7
// session (AlwaysOpen).
type TradingCalendar struct {
	Calendar   *calendar.Calendar
	Fallback   bool
	AlwaysOpen bool
	Timezone   *time.Location
}

// -----------------------------------------------------------------------------

// IsCryptoSymbol reports whether a symbol names a crypto pair. The synthetic
// catalog is crypto-first, so anything without an exchange suffix counts.
func IsCryptoSymbol(symbol string) bool {
	if strings.Contains(symbol, ".") {
		return false
	}
	for _, quote := range []string{"USDT", "USDC", "USD", "BTC", "ETH", "EUR"} {
		if strings.HasSuffix(symbol, quote) {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

func GetCalendar(symbol string) *TradingCalendar {
	if IsCryptoSymbol(symbol) {
		return &TradingCalendar{AlwaysOpen: true, Timezone: time.UTC}
	}

	// Simple mapping based on suffix to MIC code
	// See scmhub/calendar for supported MICs (ISO 10383)
	mic := "xnys" // Default US NYSE
	if strings.HasSuffix(symbol, ".L") {
		mic = "xlon"
	} else if strings.HasSuffix(symbol, ".PA") {
		mic = "xpar"
	} else if strings.HasSuffix(symbol, ".DE") {
		mic = "xfra"
	} else if strings.HasSuffix(symbol, ".AS") {
		mic = "xams"
	} else if strings.HasSuffix(symbol, ".MI") {
		mic = "xmil"
	} else if strings.HasSuffix(symbol, ".ST") {
		mic = "xsto"
	} else if strings.HasSuffix(symbol, ".SW") {
		mic = "xswx"
	} else if strings.HasSuffix(symbol, ".TO") {
		mic = "xtse"
	} else if strings.HasSuffix(symbol, ".T") {
		mic = "xtks"
	} else if strings.HasSuffix(symbol, ".HK") {
		mic = "xhkg"
	} else if strings.HasSuffix(symbol, ".AX") {
		mic = "xasx"
	}

	// scmhub/calendar.GetCalendar returns a calendar by MIC
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		// Fallback to xnys if not found
		cal = calendar.GetCalendar("xnys")
	}

	if cal == nil {
		log.Printf("WARNING: Failed to load calendar for MIC '%s' and fallback 'xnys'. Using simple fallback (Mon-Fri 09:30-16:00 NY).", mic)
		nyLoc, _ := time.LoadLocation("America/New_York")
		if nyLoc == nil {
			nyLoc = time.UTC // Worst case
		}
		return &TradingCalendar{Fallback: true, Timezone: nyLoc}
	}

	return &TradingCalendar{Calendar: cal, Fallback: false, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.AlwaysOpen {
		return true
	}

	// Normalize to timezone if available
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		// Simple fallback: Mon-Fri
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	// Library handles IsHoliday / IsBusinessDay
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenOnMinute checks if the market is open at a specific minute.
func (tc *TradingCalendar) IsOpenOnMinute(t time.Time) bool {
	if tc.AlwaysOpen {
		return true
	}

	// Normalize to timezone if available
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}

	if tc.Fallback {
		if !tc.IsTradingDay(t) {
			return false
		}

		hour := t.Hour()
		minute := t.Minute()

		// 9:30 - 16:00 NY Time
		if (hour > 9 || (hour == 9 && minute >= 30)) && hour < 16 {
			return true
		}
		return false
	}

	return tc.Calendar.IsOpen(t)
}
