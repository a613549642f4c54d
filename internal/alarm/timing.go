// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package alarm

import "time"

// applyFiringTiming debounces a raw condition verdict into a stable firing
// decision: a candidate transition must hold for debounceSeconds (to fire)
// or clearHysteresisSeconds (to clear) before it takes effect. A candidate
// that reverts back to the current state before its hold time elapses is
// discarded rather than partially counted toward the next attempt.
//
// state is the same per-target persistent memory map evalCondition's
// ConsecutivePeriods uses, keyed so the two don't collide.
func applyFiringTiming(shouldFireNow, currentlyFiring bool, timing Timing, now time.Time, state map[string]any) bool {
	if shouldFireNow == currentlyFiring {
		delete(state, "timing_pending_since")
		delete(state, "timing_pending_state")
		return currentlyFiring
	}

	pendingState, hasPending := state["timing_pending_state"].(bool)
	if !hasPending || pendingState != shouldFireNow {
		state["timing_pending_state"] = shouldFireNow
		state["timing_pending_since"] = epochOf(now)
		return currentlyFiring
	}

	since := toInt64(state["timing_pending_since"])
	required := timing.ClearHysteresisSeconds
	if shouldFireNow {
		required = timing.DebounceSeconds
	}
	if required < 0 {
		required = 0
	}

	if epochOf(now)-since >= required {
		delete(state, "timing_pending_since")
		delete(state, "timing_pending_state")
		return shouldFireNow
	}
	return currentlyFiring
}
