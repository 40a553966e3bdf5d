package ledger

import "time"

// Clock supplies the instants stamped on new moments.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// WallClock returns the system clock in UTC.
func WallClock() Clock { return wallClock{} }
