// Package theme provides the Lip Gloss palette and shared styles for
// rtwatch. It is a leaf package with no internal imports.
package theme

import "github.com/charmbracelet/lipgloss"

// Event category colors.
var (
	ColorMessaging = lipgloss.Color("#3b82f6")
	ColorPresence  = lipgloss.Color("#6b7280")
	ColorBusiness  = lipgloss.Color("#a855f7")
	ColorSystem    = lipgloss.Color("#d97706")
	ColorBatch     = lipgloss.Color("#06b6d4")
	ColorDefault   = lipgloss.Color("#9ca3af")
)

// Efficiency thresholds.
var (
	ColorEfficiencyLow  = lipgloss.Color("#22c55e") // <25% of full fan-out
	ColorEfficiencyMid  = lipgloss.Color("#d97706")
	ColorEfficiencyHigh = lipgloss.Color("#dc2626") // >75%
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// TypeColor returns the color for an event type name.
func TypeColor(typ string) lipgloss.Color {
	switch typ {
	case "newMessage", "messageStatus", "conversationUpdate", "conversationAssigned":
		return ColorMessaging
	case "typingIndicator", "presenceUpdate", "readReceipt":
		return ColorPresence
	case "contactUpdate", "campaignProgress", "analyticsUpdate":
		return ColorBusiness
	case "planUpdate", "systemNotification", "connectionStatus":
		return ColorSystem
	case "batchedEvents":
		return ColorBatch
	default:
		return ColorDefault
	}
}

// EfficiencyColor colors the delivered/fan-out ratio. Lower means more
// bytes saved by routing.
func EfficiencyColor(ratio float64) lipgloss.Color {
	switch {
	case ratio > 0.75:
		return ColorEfficiencyHigh
	case ratio > 0.25:
		return ColorEfficiencyMid
	default:
		return ColorEfficiencyLow
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)
)
