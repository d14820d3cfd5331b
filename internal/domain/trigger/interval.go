package trigger

import "time"

// MainInterval returns the GCD (in seconds) of every trigger's
// CheckInterval: the cadence the trigger loop's single ticker runs at,
// so that each individual trigger's own interval lands on an exact
// multiple of ticks. Recomputed whenever the trigger set is reloaded.
func MainInterval(triggers []Trigger) time.Duration {
	var g int64
	for _, t := range triggers {
		secs := int64(t.CheckInterval / time.Second)
		if secs <= 0 {
			continue
		}
		g = gcd(g, secs)
	}
	if g <= 0 {
		return time.Second
	}
	return time.Duration(g) * time.Second
}

func gcd(a, b int64) int64 {
	if a == 0 {
		return b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// DueTriggers returns the subset of triggers whose CheckInterval has
// elapsed since their recorded LastCheck, given the current tick time.
func DueTriggers(triggers []Trigger, states map[string]*State, now time.Time) []Trigger {
	var due []Trigger
	for _, t := range triggers {
		st := states[t.Name]
		if st == nil || now.Sub(st.LastCheck) >= t.CheckInterval {
			due = append(due, t)
		}
	}
	return due
}
