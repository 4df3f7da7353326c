package sched

import (
	"fmt"
	"time"

	"github.com/redhouse-home/heatctl/core/model"
)

// Edit rewrites the [start, end) window of the schedule to the given mode,
// trimming or splitting overlapped entries so the day stays contiguous and
// non-overlapping. Entries already executed are left alone. Changed slots
// get an adjustment record and the schedule's generation timestamp is
// bumped.
func Edit(s *Schedule, start, end time.Time, mode model.Mode, now time.Time) (int, error) {
	if !mode.Valid() {
		return 0, fmt.Errorf("%w: %d", model.ErrUnknownMode, int(mode))
	}
	if !end.After(start) {
		return 0, fmt.Errorf("edit window end %v is not after start %v", end, start)
	}
	if len(s.Entries) == 0 {
		return 0, fmt.Errorf("schedule has no entries")
	}
	dayStart := s.Entries[0].Start
	dayEnd := s.Entries[len(s.Entries)-1].End
	if start.Before(dayStart) || end.After(dayEnd) {
		return 0, fmt.Errorf("edit window %v-%v is outside the program day", start, end)
	}

	var out []Entry
	changed := 0
	for _, e := range s.Entries {
		ovStart := maxTime(start, e.Start)
		ovEnd := minTime(end, e.End)
		if !ovEnd.After(ovStart) || e.Mode == mode || e.Executed() {
			out = append(out, e)
			continue
		}
		adj := Adjustment{At: now, OldMode: e.Mode, NewMode: mode, Reason: "manual edit"}
		if e.Start.Before(ovStart) {
			pre := e
			pre.End = ovStart
			out = append(out, pre)
		}
		mid := e
		mid.Start = ovStart
		mid.Timestamp = ovStart.Unix()
		mid.End = ovEnd
		mid.Mode = mode
		mid.Heating = mode == model.ModeRun
		mid.PowerKW = s.InputParameters.BaseLoadKW
		if mid.Heating {
			mid.PowerKW += s.InputParameters.HeatingLoadKW
		}
		mid.Adjustments = append(append([]Adjustment(nil), e.Adjustments...), adj)
		out = append(out, mid)
		if e.End.After(ovEnd) {
			post := e
			post.Start = ovEnd
			post.Timestamp = ovEnd.Unix()
			out = append(out, post)
		}
		changed++
	}
	if changed == 0 {
		return 0, nil
	}
	s.Entries = out
	s.GeneratedAt = now
	s.RefreshStatus(now)
	return changed, nil
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
