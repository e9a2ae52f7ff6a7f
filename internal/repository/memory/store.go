// Package memory provides in-process implementations of the repository
// interfaces. It backs tests and single-node deployments without PostgreSQL.
package memory

import (
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/k1tz03/Forkfall/internal/models"
	"github.com/k1tz03/Forkfall/internal/repository"
)

type maskKey struct {
	actorID uuid.UUID
	lane    string
}

// Store holds every table behind one lock so that an interaction and its
// counter increment land together.
type Store struct {
	mu           sync.RWMutex
	forks        map[uuid.UUID]*models.Fork
	interactions map[uuid.UUID]*models.Interaction
	actors       map[uuid.UUID]*models.Actor
	fingerprints map[string]uuid.UUID
	reports      map[uuid.UUID]*models.Report
	masks        map[uuid.UUID]*models.Mask
	current      map[maskKey]uuid.UUID
	sessions     map[uuid.UUID]*models.Session
}

func NewStore() *Store {
	return &Store{
		forks:        make(map[uuid.UUID]*models.Fork),
		interactions: make(map[uuid.UUID]*models.Interaction),
		actors:       make(map[uuid.UUID]*models.Actor),
		fingerprints: make(map[string]uuid.UUID),
		reports:      make(map[uuid.UUID]*models.Report),
		masks:        make(map[uuid.UUID]*models.Mask),
		current:      make(map[maskKey]uuid.UUID),
		sessions:     make(map[uuid.UUID]*models.Session),
	}
}

func (s *Store) Forks() repository.ForkRepository               { return forkStore{s} }
func (s *Store) Interactions() repository.InteractionRepository { return interactionStore{s} }
func (s *Store) Actors() repository.ActorRepository             { return actorStore{s} }
func (s *Store) Reports() repository.ReportRepository           { return reportStore{s} }
func (s *Store) Masks() repository.MaskRepository               { return maskStore{s} }
func (s *Store) Sessions() repository.SessionRepository         { return sessionStore{s} }

type forkStore struct{ *Store }

func (s forkStore) Create(_ context.Context, fork *models.Fork) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.forks[fork.ID]; ok {
		return models.NewValidationError("id", "fork already exists")
	}
	f := *fork
	s.forks[f.ID] = &f
	return nil
}

func (s forkStore) GetByID(_ context.Context, id uuid.UUID) (*models.Fork, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.forks[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *f
	return &out, nil
}

func (s forkStore) GetCandidates(_ context.Context, filter models.CandidateFilter) ([]*models.Fork, error) {
	s.mu.RLock()
	out := make([]*models.Fork, 0, len(s.forks))
	for _, f := range s.forks {
		if filter.Lane != "" && f.Lane != filter.Lane {
			continue
		}
		if filter.Energy != "" && f.Energy != filter.Energy {
			continue
		}
		c := *f
		out = append(out, &c)
	}
	s.mu.RUnlock()

	newestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s forkStore) GetByParent(_ context.Context, parentID uuid.UUID) ([]*models.Fork, error) {
	s.mu.RLock()
	var out []*models.Fork
	for _, f := range s.forks {
		if f.ParentForkID != nil && *f.ParentForkID == parentID {
			c := *f
			out = append(out, &c)
		}
	}
	s.mu.RUnlock()
	newestFirst(out)
	return out, nil
}

func (s forkStore) IncrementCounter(_ context.Context, forkID uuid.UUID, interactionType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.increment(forkID, interactionType)
}

func (s forkStore) RecordInteraction(_ context.Context, in *models.Interaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.interactions[in.ID]; ok {
		return false, nil
	}
	if err := s.increment(in.ForkID, in.Type); err != nil {
		return false, err
	}
	c := *in
	s.interactions[c.ID] = &c
	return true, nil
}

// increment requires s.mu held for writing.
func (s *Store) increment(forkID uuid.UUID, interactionType string) error {
	f, ok := s.forks[forkID]
	if !ok {
		return models.ErrNotFound
	}
	switch interactionType {
	case models.InteractionSwipeLeft:
		f.LeftCount++
	case models.InteractionSwipeRight:
		f.RightCount++
	case models.InteractionSkip:
		f.SkipCount++
	case models.InteractionTwist:
		f.TwistCount++
	default:
		return models.NewValidationError("type", "unknown interaction type")
	}
	return nil
}

func newestFirst(forks []*models.Fork) {
	slices.SortFunc(forks, func(a, b *models.Fork) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}

type interactionStore struct{ *Store }

func (s interactionStore) GetByID(_ context.Context, id uuid.UUID) (*models.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.interactions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *in
	return &c, nil
}

func (s interactionStore) SkippedForkIDs(_ context.Context, actorID uuid.UUID, forkIDs []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	wanted := make(map[uuid.UUID]struct{}, len(forkIDs))
	for _, id := range forkIDs {
		wanted[id] = struct{}{}
	}
	skipped := make(map[uuid.UUID]struct{})
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, in := range s.interactions {
		if in.ActorID != actorID || in.Type != models.InteractionSkip {
			continue
		}
		if _, ok := wanted[in.ForkID]; ok {
			skipped[in.ForkID] = struct{}{}
		}
	}
	return skipped, nil
}

func (s interactionStore) ListByActor(_ context.Context, actorID uuid.UUID, limit int) ([]*models.Interaction, error) {
	s.mu.RLock()
	var out []*models.Interaction
	for _, in := range s.interactions {
		if in.ActorID == actorID {
			c := *in
			out = append(out, &c)
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b *models.Interaction) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type actorStore struct{ *Store }

func (s actorStore) Create(_ context.Context, actor *models.Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fingerprints[actor.DeviceFingerprint]; ok {
		return models.NewValidationError("device_fingerprint", "actor already registered")
	}
	a := *actor
	s.actors[a.ID] = &a
	s.fingerprints[a.DeviceFingerprint] = a.ID
	return nil
}

func (s actorStore) GetByID(_ context.Context, id uuid.UUID) (*models.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *a
	return &out, nil
}

func (s actorStore) GetByFingerprint(ctx context.Context, fingerprint string) (*models.Actor, error) {
	s.mu.RLock()
	id, ok := s.fingerprints[fingerprint]
	s.mu.RUnlock()
	if !ok {
		return nil, models.ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s actorStore) AdjustTrustScore(_ context.Context, id uuid.UUID, delta, floor float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[id]
	if !ok {
		return 0, models.ErrNotFound
	}
	a.TrustScore = math.Max(floor, a.TrustScore+delta)
	return a.TrustScore, nil
}

func (s actorStore) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[id]
	if !ok {
		return models.ErrNotFound
	}
	a.Status = status
	return nil
}

type reportStore struct{ *Store }

func (s reportStore) Append(_ context.Context, report *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *report
	s.reports[r.ID] = &r
	return nil
}

func (s reportStore) GetByID(_ context.Context, id uuid.UUID) (*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *r
	return &out, nil
}

func (s reportStore) ListByFork(ctx context.Context, forkID uuid.UUID) ([]*models.Report, error) {
	byFork, err := s.ListByForks(ctx, []uuid.UUID{forkID})
	if err != nil {
		return nil, err
	}
	return byFork[forkID], nil
}

func (s reportStore) ListByForks(_ context.Context, forkIDs []uuid.UUID) (map[uuid.UUID][]*models.Report, error) {
	wanted := make(map[uuid.UUID]struct{}, len(forkIDs))
	for _, id := range forkIDs {
		wanted[id] = struct{}{}
	}
	byFork := make(map[uuid.UUID][]*models.Report)
	s.mu.RLock()
	for _, r := range s.reports {
		if _, ok := wanted[r.ForkID]; ok {
			c := *r
			byFork[r.ForkID] = append(byFork[r.ForkID], &c)
		}
	}
	s.mu.RUnlock()
	for _, reports := range byFork {
		slices.SortFunc(reports, func(a, b *models.Report) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		})
	}
	return byFork, nil
}

func (s reportStore) UpdateState(_ context.Context, id uuid.UUID, from, to string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return models.ErrNotFound
	}
	if r.State != from {
		return models.ErrInvalidTransition
	}
	r.State = to
	r.UpdatedAt = at
	return nil
}

type maskStore struct{ *Store }

func (s maskStore) GetCurrent(_ context.Context, actorID uuid.UUID, lane string) (*models.Mask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.current[maskKey{actorID, lane}]
	if !ok {
		return nil, nil
	}
	m := *s.masks[id]
	return &m, nil
}

func (s maskStore) CompareAndSwap(_ context.Context, prevID uuid.UUID, next *models.Mask) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := maskKey{next.ActorID, next.Lane}
	if s.current[key] != prevID {
		return false, nil
	}
	m := *next
	s.masks[m.ID] = &m
	s.current[key] = m.ID
	return true, nil
}

func (s maskStore) ListByActorLane(_ context.Context, actorID uuid.UUID, lane string) ([]*models.Mask, error) {
	s.mu.RLock()
	var out []*models.Mask
	for _, m := range s.masks {
		if m.ActorID == actorID && m.Lane == lane {
			c := *m
			out = append(out, &c)
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b *models.Mask) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

type sessionStore struct{ *Store }

func (s sessionStore) Get(_ context.Context, actorID uuid.UUID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[actorID]
	if !ok {
		return nil, nil
	}
	out := *sess
	return &out, nil
}

func (s sessionStore) Put(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *session
	s.sessions[c.ActorID] = &c
	return nil
}
