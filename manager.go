package aggregio

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	poolSize      = 200
	poolPerPage   = 50
	concurrency   = 5
	remoteTimeout = 2 * time.Minute
)

var (
	// ErrNotFound reports that the athlete has no aggregate with the
	// requested id.
	ErrNotFound = errors.New("aggregate not found")
	// ErrValidation reports input the manager refuses to save.
	ErrValidation = errors.New("aggregate name required")
)

// ActivitySource provides read access to an athlete's remote activities.
type ActivitySource interface {
	// Activities returns one page of the athlete's activities, most recent
	// first. An empty page signals the end of the list.
	Activities(ctx context.Context, page, perPage int) ([]Activity, error)
	// Activity returns the full record for a single activity.
	Activity(ctx context.Context, id int64) (Activity, error)
}

// SaveInput is the form-shaped input for Save. An ID of 0 creates a new
// aggregate; ActivityIDs keep the order the user selected them in.
type SaveInput struct {
	ID          int64
	Name        string
	ActivityIDs []int64
}

// Manager owns the aggregate lifecycle and is the only writer of the store.
type Manager struct {
	store *Store
}

func NewManager(store *Store) *Manager {
	return &Manager{store: store}
}

// pool collects up to poolSize of the athlete's most recent activities. A
// remote failure truncates the pool rather than failing the caller; a failure
// on the very first page yields an empty pool.
func (m *Manager) pool(c context.Context, src ActivitySource) []Activity {
	ctx, cancel := context.WithTimeout(c, remoteTimeout)
	defer cancel()

	var acts []Activity
	for page := 1; len(acts) < poolSize; page++ {
		batch, err := src.Activities(ctx, page, poolPerPage)
		if err != nil {
			log.Warn().Err(err).Int("page", page).Msg("activity pool truncated")
			break
		}
		if len(batch) == 0 {
			break
		}
		acts = append(acts, batch...)
	}
	if len(acts) > poolSize {
		acts = acts[:poolSize]
	}
	return acts
}

// BeginCreate returns the candidate activities for a new aggregate. The pool
// is a bounded prefetch, not the athlete's complete history.
func (m *Manager) BeginCreate(ctx context.Context, src ActivitySource) []Activity {
	return m.pool(ctx, src)
}

// BeginEdit returns the aggregate to edit along with the candidate pool.
func (m *Manager) BeginEdit(ctx context.Context, src ActivitySource, athleteID, id int64) (Aggregate, []Activity, error) {
	agg, ok := m.store.Get(athleteID, id)
	if !ok {
		return Aggregate{}, nil, ErrNotFound
	}
	return agg, m.pool(ctx, src), nil
}

// Save resolves the selected activities, computes totals over the ones that
// could be fetched, and writes the aggregate. Activities that fail to resolve
// are skipped, never fatal; the count of skipped activities is returned so
// callers can surface it. Editing an existing aggregate keeps its id and
// CreatedAt; an id that matches nothing falls back to create.
func (m *Manager) Save(ctx context.Context, src ActivitySource, athleteID int64, in SaveInput) (Aggregate, int, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Aggregate{}, 0, ErrValidation
	}

	var acts []Activity
	var totals Totals
	for _, act := range m.details(ctx, src, in.ActivityIDs) {
		if act == nil {
			continue
		}
		acts = append(acts, *act)
		totals.Distance += act.Distance
		totals.Time += act.ElapsedTime
		totals.Elevation += act.ElevationGain
	}
	totals.Count = len(acts)

	agg := Aggregate{
		Name:       name,
		Activities: acts,
		Totals:     totals,
		CreatedAt:  time.Now(),
	}
	if in.ID != 0 {
		if prev, ok := m.store.Get(athleteID, in.ID); ok {
			agg.ID = prev.ID
			agg.CreatedAt = prev.CreatedAt
		}
	}

	skipped := len(in.ActivityIDs) - len(acts)
	if skipped > 0 {
		log.Warn().Int("skipped", skipped).Int64("athlete", athleteID).Str("name", name).Msg("save")
	}
	return m.store.Upsert(athleteID, agg), skipped, nil
}

// details resolves activity records with a capped worker pool. Results stay
// pinned to their submission index so the stored order matches the submitted
// order; a failed fetch leaves a nil slot.
func (m *Manager) details(c context.Context, src ActivitySource, ids []int64) []*Activity {
	ctx, cancel := context.WithTimeout(c, remoteTimeout)
	defer cancel()

	type pick struct {
		index int
		id    int64
	}
	res := make([]*Activity, len(ids))
	picks := make(chan pick)
	grp, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		grp.Go(func() error {
			for p := range picks {
				act, err := src.Activity(ctx, p.id)
				if err != nil {
					log.Warn().Err(err).Int64("id", p.id).Msg("skipping activity")
					continue
				}
				res[p.index] = &act
			}
			return nil
		})
	}
	for i, id := range ids {
		picks <- pick{index: i, id: id}
	}
	close(picks)
	_ = grp.Wait()
	return res
}

// List returns the athlete's aggregates in insertion order.
func (m *Manager) List(athleteID int64) []Aggregate {
	return m.store.List(athleteID)
}

// View returns the stored aggregate as-is, with no refresh against the remote
// source. Totals reflect values at save time.
func (m *Manager) View(athleteID, id int64) (Aggregate, error) {
	agg, ok := m.store.Get(athleteID, id)
	if !ok {
		return Aggregate{}, ErrNotFound
	}
	return agg, nil
}

// Delete removes the aggregate. Deleting an unknown id is a no-op.
func (m *Manager) Delete(athleteID, id int64) {
	m.store.Remove(athleteID, id)
}
