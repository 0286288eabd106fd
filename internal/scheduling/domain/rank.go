package domain

import (
	"sort"
	"time"

	taskdomain "github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

// RankedTask pairs a task with its governing tier for ordering.
type RankedTask struct {
	Task       *taskdomain.Task
	Tier       int
	TierReason string
}

// sortKey is the intra-tier ordering tuple. Absent deadlines and due
// dates sort last.
type sortKey struct {
	deadline time.Time
	hasDL    bool
	dueBy    time.Time
	hasDue   bool
	impact   float64
	risk     float64
	created  time.Time
	id       string
}

func keyFor(t *taskdomain.Task, loc *time.Location) sortKey {
	k := sortKey{
		impact:  t.ImpactScore(),
		risk:    t.RiskScore(),
		created: t.CreatedAt(),
		id:      t.ID().String(),
	}
	if d := t.Deadline(); d != nil {
		k.deadline = *d
		k.hasDL = true
	}
	if due := t.DueBy(); due != nil {
		// Soft due dates bind at end of day in the user's timezone.
		k.dueBy = due.EndOfDay(loc)
		k.hasDue = true
	}
	return k
}

func (a sortKey) less(b sortKey) bool {
	if a.hasDL != b.hasDL {
		return a.hasDL
	}
	if a.hasDL && !a.deadline.Equal(b.deadline) {
		return a.deadline.Before(b.deadline)
	}
	if a.hasDue != b.hasDue {
		return a.hasDue
	}
	if a.hasDue && !a.dueBy.Equal(b.dueBy) {
		return a.dueBy.Before(b.dueBy)
	}
	if a.impact != b.impact {
		return a.impact > b.impact
	}
	if a.risk != b.risk {
		return a.risk > b.risk
	}
	if !a.created.Equal(b.created) {
		return a.created.Before(b.created)
	}
	return a.id < b.id
}

// Rank orders tasks by tier, then by the intra-tier tuple: deadline,
// due_by at end of day in loc, impact descending, risk descending,
// creation time, id. The ordering is total and deterministic.
func Rank(tasks []RankedTask, loc *time.Location) []RankedTask {
	out := make([]RankedTask, len(tasks))
	copy(out, tasks)

	keys := make(map[string]sortKey, len(out))
	for _, rt := range out {
		keys[rt.Task.ID().String()] = keyFor(rt.Task, loc)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier < out[j].Tier
		}
		return keys[out[i].Task.ID().String()].less(keys[out[j].Task.ID().String()])
	})
	return out
}
