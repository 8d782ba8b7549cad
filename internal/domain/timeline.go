package domain

import "time"

// TimelineEvent описывает событие в жизненном цикле альбарана.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Status   Status
	Reason   string
	Occurred time.Time
}
