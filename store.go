package aggregio

import "sync"

// Store keeps each athlete's aggregates in memory for the lifetime of the
// process. There is no persistence layer; a restart drops everything.
type Store struct {
	mu         sync.Mutex
	aggregates map[int64][]Aggregate
}

func NewStore() *Store {
	return &Store{aggregates: make(map[int64][]Aggregate)}
}

// List returns copies of the athlete's aggregates in insertion order. An
// athlete with no aggregates gets an empty slice.
func (s *Store) List(athleteID int64) []Aggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	aggs := s.aggregates[athleteID]
	res := make([]Aggregate, len(aggs))
	for i := range aggs {
		res[i] = clone(aggs[i])
	}
	return res
}

// Get returns a copy of the aggregate with the given id.
func (s *Store) Get(athleteID, id int64) (Aggregate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, agg := range s.aggregates[athleteID] {
		if agg.ID == id {
			return clone(agg), true
		}
	}
	return Aggregate{}, false
}

// Upsert writes the aggregate and returns the stored copy. An aggregate with
// id 0 is assigned the next id for the athlete; allocation and insert happen
// under the same lock so concurrent saves cannot produce duplicate ids. A
// known id replaces the existing entry in place, an unknown one is appended.
func (s *Store) Upsert(athleteID int64, agg Aggregate) Aggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg = clone(agg)
	if agg.ID == 0 {
		agg.ID = s.nextID(athleteID)
		s.aggregates[athleteID] = append(s.aggregates[athleteID], agg)
		return clone(agg)
	}
	aggs := s.aggregates[athleteID]
	for i := range aggs {
		if aggs[i].ID == agg.ID {
			aggs[i] = agg
			return clone(agg)
		}
	}
	s.aggregates[athleteID] = append(aggs, agg)
	return clone(agg)
}

// Remove deletes the aggregate if present. Removing an unknown id is not an
// error.
func (s *Store) Remove(athleteID, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	aggs := s.aggregates[athleteID]
	for i := range aggs {
		if aggs[i].ID == id {
			s.aggregates[athleteID] = append(aggs[:i], aggs[i+1:]...)
			return
		}
	}
}

func (s *Store) nextID(athleteID int64) int64 {
	var max int64
	for _, agg := range s.aggregates[athleteID] {
		if agg.ID > max {
			max = agg.ID
		}
	}
	return max + 1
}

// clone copies the aggregate deeply enough that callers cannot reach into
// stored state through the activities slice.
func clone(agg Aggregate) Aggregate {
	agg.Activities = append([]Activity(nil), agg.Activities...)
	return agg
}
