package digest

// tips is the static table of energy-efficiency tips the daily digest
// selects from. Selection is deterministic: day_of_year mod len(tips).
var tips = []string{
	"Set your thermostat a couple degrees lower overnight; you won't notice the difference in comfort, but you'll notice it on the bill.",
	"Unplug chargers and electronics you're not actively using; many devices draw a small trickle of power even when switched off.",
	"Run your dishwasher and washing machine with full loads; partial loads waste the same amount of water and energy.",
	"Replace incandescent bulbs with LEDs where you haven't already; they use about 75% less energy for the same brightness.",
	"Seal gaps around doors and windows with weatherstripping to stop conditioned air from leaking out.",
	"Use ceiling fans to circulate air instead of lowering the thermostat further; moving air feels cooler at the same temperature.",
	"Clean or replace HVAC filters regularly; a clogged filter makes your system work harder for the same output.",
	"Wash clothes in cold water when possible; most of a washing machine's energy use goes toward heating water.",
	"Close blinds or curtains on hot afternoons to block solar heat gain before it reaches your cooling system.",
	"Schedule water heater temperature at 120°F (49°C); it's hot enough for comfort and safety while cutting standby losses.",
}

// TipCount returns the size of the tip table.
func TipCount() int {
	return len(tips)
}

// TipForDayOfYear returns the tip selected deterministically for the
// given day of year (1-366) via day_of_year mod N.
func TipForDayOfYear(dayOfYear int) string {
	return tips[dayOfYear%len(tips)]
}
