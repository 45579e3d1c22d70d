package inference

import (
	"time"

	"golang.org/x/time/rate"
)

// newMinuteLimiter allows rpm requests per minute. The bucket starts full
// so a burst of rpm calls passes before refills pace it to one per
// minute/rpm.
func newMinuteLimiter(rpm int) *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)
}
