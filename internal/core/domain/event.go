package domain

import "slices"

// Event owns a fixed points pool. PointsAwarded + PointsRemain never changes after creation.
type Event struct {
	ID            int64
	Name          string
	Organizers    []int64
	Guests        []int64
	PointsRemain  int64
	PointsAwarded int64
}

func (e Event) PointsTotal() int64 {
	return e.PointsAwarded + e.PointsRemain
}

func (e Event) IsOrganizer(accountID int64) bool {
	return slices.Contains(e.Organizers, accountID)
}

func (e Event) HasGuest(accountID int64) bool {
	return slices.Contains(e.Guests, accountID)
}
