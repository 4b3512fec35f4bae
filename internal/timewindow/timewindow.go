// Package timewindow converts UTC instants to an account's local wall-clock
// time and decides whether outbound messaging is currently prohibited.
package timewindow

import "time"

// FallbackZone is used whenever an account's timezone is missing or not
// recognized by the zone database.
const FallbackZone = "America/New_York"

// LocalTime holds the wall-clock parts of an instant in an account's zone.
type LocalTime struct {
	Hour      int
	DayOfWeek time.Weekday
	ISODate   string // YYYY-MM-DD
	Formatted string // e.g. "Mon, 02 Jan 2006 15:04"
}

// Gate decides quiet-hours suppression for a configured window. The window
// wraps midnight: quiet when local hour >= StartHour or < EndHour, so the
// start hour itself is quiet and the end hour is not.
type Gate struct {
	StartHour   int
	EndHour     int
	DefaultZone string
}

// NewGate returns a Gate with the given window. Zero values fall back to
// the 21:00 to 08:00 default window and FallbackZone.
func NewGate(startHour, endHour int, defaultZone string) *Gate {
	g := &Gate{StartHour: startHour, EndHour: endHour, DefaultZone: defaultZone}
	if g.StartHour == 0 && g.EndHour == 0 {
		g.StartHour = 21
		g.EndHour = 8
	}
	if g.DefaultZone == "" {
		g.DefaultZone = FallbackZone
	}
	return g
}

// Override returns a copy of the gate with a different window, keeping
// the default zone. Used for per-account window settings; a zeroed
// window falls back to the same default window as NewGate.
func (g *Gate) Override(startHour, endHour int) *Gate {
	return NewGate(startHour, endHour, g.DefaultZone)
}

// IsValidTimezone reports whether tz is recognized by the zone database.
func IsValidTimezone(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

func (g *Gate) location(tz string) *time.Location {
	if loc, err := time.LoadLocation(tz); err == nil && tz != "" {
		return loc
	}
	if loc, err := time.LoadLocation(g.DefaultZone); err == nil {
		return loc
	}
	return time.UTC
}

// LocalNow converts a UTC instant to local wall-clock parts in tz, falling
// back to the gate's default zone when tz is invalid. It never fails.
func (g *Gate) LocalNow(tz string, utc time.Time) LocalTime {
	local := utc.In(g.location(tz))
	return LocalTime{
		Hour:      local.Hour(),
		DayOfWeek: local.Weekday(),
		ISODate:   local.Format("2006-01-02"),
		Formatted: local.Format("Mon, 02 Jan 2006 15:04"),
	}
}

// LocalMidnightUTC returns the UTC instant of today's local midnight in tz,
// where "today" is the local calendar date of the given instant. Resolving
// midnight through the zone (rather than subtracting a fixed offset) keeps
// the result correct across daylight-saving transitions.
func (g *Gate) LocalMidnightUTC(tz string, utc time.Time) time.Time {
	loc := g.location(tz)
	local := utc.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.UTC()
}

// DaysAgo returns local midnight minus n whole days, expressed in UTC.
// n=0 equals LocalMidnightUTC.
func (g *Gate) DaysAgo(tz string, n int, utc time.Time) time.Time {
	return g.LocalMidnightUTC(tz, utc).Add(-time.Duration(n) * 24 * time.Hour)
}

// IsQuietHours reports whether the instant falls inside the quiet window
// for tz. The start hour is quiet; the end hour is not.
func (g *Gate) IsQuietHours(tz string, utc time.Time) bool {
	hour := g.LocalNow(tz, utc).Hour
	if g.StartHour > g.EndHour {
		return hour >= g.StartHour || hour < g.EndHour
	}
	return hour >= g.StartHour && hour < g.EndHour
}

// NextSendWindow returns the next UTC instant at which the quiet window
// ends for tz. Returns the instant itself when it is not quiet.
func (g *Gate) NextSendWindow(tz string, utc time.Time) time.Time {
	if !g.IsQuietHours(tz, utc) {
		return utc
	}
	loc := g.location(tz)
	local := utc.In(loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), g.EndHour, 0, 0, 0, loc)
	if !end.After(local) {
		end = end.AddDate(0, 0, 1)
	}
	return end.UTC()
}
