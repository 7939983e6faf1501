package usage

import "time"

const (
	defaultPlan   = "Starter"
	defaultLimit  = 10
	defaultPeriod = 7 * 24 * time.Hour
)

// Quota configures the allowance granted to each user per period.
type Quota struct {
	Plan   string
	Limit  int
	Period time.Duration
}

func (q Quota) normalized() Quota {
	if q.Plan == "" {
		q.Plan = defaultPlan
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Period <= 0 {
		q.Period = defaultPeriod
	}
	return q
}

func (q Quota) fresh(now time.Time) Usage {
	return Usage{
		Plan:     q.Plan,
		Limit:    q.Limit,
		Used:     0,
		ResetsAt: now.Add(q.Period),
	}
}
