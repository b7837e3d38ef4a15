package aggregio

import "time"

// Activity is a snapshot of a single Strava activity. Aggregates keep copies
// of these, so later changes to the activity on Strava do not retroactively
// change stored totals.
type Activity struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	Distance       float64 `json:"distance"`
	ElapsedTime    int     `json:"elapsed_time"`
	ElevationGain  float64 `json:"total_elevation_gain"`
	StartDateLocal string  `json:"start_date_local"`
}

// Totals are the derived sums over an aggregate's activities.
type Totals struct {
	Distance  float64 `json:"distance"`
	Time      int     `json:"time"`
	Elevation float64 `json:"elevation"`
	Count     int     `json:"count"`
}

// Aggregate is a named grouping of activities owned by a single athlete.
// The id is unique within the athlete's collection and stable once assigned;
// CreatedAt is set once and survives edits.
type Aggregate struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Activities []Activity `json:"activities"`
	Totals     Totals     `json:"totals"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Athlete is the authenticated Strava athlete.
type Athlete struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	City      string `json:"city"`
	Country   string `json:"country"`
	Profile   string `json:"profile"`
}
