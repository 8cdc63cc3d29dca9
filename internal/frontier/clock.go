package frontier

import "time"

// Clock supplies the wall time stamped on claims, heartbeats, and updates.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
