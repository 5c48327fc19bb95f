package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time to stores that stamp records.
type Clock interface {
	Now() time.Time
}

// Func adapts a plain function to Clock.
type Func func() time.Time

func (f Func) Now() time.Time {
	return f()
}

// System returns a UTC wall clock.
func System() Clock {
	return Func(func() time.Time { return time.Now().UTC() })
}

// Fixed always reports t.
func Fixed(t time.Time) Clock {
	t = t.UTC()
	return Func(func() time.Time { return t })
}

// Stepper returns start on the first call and moves forward by step on each
// subsequent call, which keeps created_at ordering deterministic in tests.
func Stepper(start time.Time, step time.Duration) Clock {
	var mu sync.Mutex
	next := start.UTC()
	return Func(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(step)
		return now
	})
}
