package models

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// NumberLimit caps how many times a number or number range may be sold for one event
type NumberLimit struct {
	bun.BaseModel `bun:"table:number_limits"`

	ID          string    `bun:"id,pk" json:"id"`
	EventID     string    `bun:"event_id,notnull,unique:event_range" json:"event_id"`
	NumberRange string    `bun:"number_range,notnull,unique:event_range" json:"number_range"`
	MaxTimes    int       `bun:"max_times,notnull" json:"max_times"`
	TimesSold   int       `bun:"times_sold,notnull,default:0" json:"times_sold"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// Remaining returns how many units can still be sold, never negative
func (l *NumberLimit) Remaining() int {
	if l.MaxTimes-l.TimesSold < 0 {
		return 0
	}
	return l.MaxTimes - l.TimesSold
}

type NumberLimitRequest struct {
	NumberRange string `json:"numberRange"`
	MaxTimes    int    `json:"maxTimes"`
}

// Availability is the answer to "can qty units of this number be sold right now".
// Unlimited means no configured range matched, Remaining is meaningless then.
type Availability struct {
	Available bool   `json:"available"`
	Remaining int    `json:"remaining"`
	Unlimited bool   `json:"unlimited"`
	LimitID   string `json:"limitId,omitempty"`
	// Unverified marks a negative answer caused by a store failure rather
	// than by the counter
	Unverified bool `json:"-"`
}

// Unavailable is the zero answer used for invalid input, cancellation and store failures
func Unavailable() Availability {
	return Availability{Available: false, Remaining: 0}
}

// UnverifiedAvailability is the negative answer given when the store could not be read
func UnverifiedAvailability() Availability {
	return Availability{Available: false, Remaining: 0, Unverified: true}
}

func UnlimitedAvailability() Availability {
	return Availability{Available: true, Unlimited: true}
}

// MarshalJSON renders an unlimited answer with a null remaining count
func (a Availability) MarshalJSON() ([]byte, error) {
	out := struct {
		Available bool   `json:"available"`
		Remaining *int   `json:"remaining"`
		Unlimited bool   `json:"unlimited"`
		LimitID   string `json:"limitId,omitempty"`
	}{Available: a.Available, Unlimited: a.Unlimited, LimitID: a.LimitID}
	if !a.Unlimited {
		remaining := a.Remaining
		out.Remaining = &remaining
	}
	return json.Marshal(out)
}
