package ranking

import (
	"math/rand/v2"
	"sort"

	"github.com/google/uuid"

	"github.com/k1tz03/Forkfall/internal/models"
)

// Diversity constraints.
const (
	DiversityWindow  = 20
	MinLanes         = 2
	MinMutationTypes = 3
	ExplorationQuota = 0.2
)

// Page is one composed feed page. Next is empty on the terminal page.
type Page struct {
	Forks       []Scored
	Next        *State
	Exploration int
	Swaps       int
}

// ClampPageSize applies the default and the hard cap.
func ClampPageSize(n int) int {
	if n <= 0 {
		return models.FeedPageSize
	}
	if n > models.MaxFeedPageSize {
		return models.MaxFeedPageSize
	}
	return n
}

// Compose selects one page from already-visible scored candidates. It is a pure
// function of its arguments, so the same cursor state over the same pool always
// yields the same page.
func Compose(candidates []Scored, actorID uuid.UUID, pageSize int, st *State) Page {
	size := ClampPageSize(pageSize)

	pool := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		if !st.Seen(c.Fork.ID) {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		return Page{}
	}
	sort.Slice(pool, func(i, j int) bool { return Less(pool[i], pool[j]) })

	terminal := len(pool) <= size
	if terminal {
		size = len(pool)
	}

	slots := int(float64(size) * ExplorationQuota)
	hi, lo := SeedFor(actorID, st.Page)
	rng := rand.New(rand.NewPCG(hi, lo))
	explore := pickExploration(pool, size-slots, slots, rng)

	c := &composition{pool: pool, taken: make([]bool, len(pool))}
	for _, idx := range explore {
		c.taken[idx] = true
	}

	stride := 0
	if slots > 0 {
		stride = size / slots
	}
	next := 0
	for pos := 0; pos < size; pos++ {
		if stride > 0 && (pos+1)%stride == 0 && next < len(explore) {
			c.placed = append(c.placed, explore[next])
			next++
			continue
		}
		best := c.bestExploit()
		if best < 0 {
			break
		}
		c.taken[best] = true
		c.placed = append(c.placed, best)
	}
	// Exploration picks that found no slot are still shown rather than dropped.
	for ; next < len(explore) && len(c.placed) < size; next++ {
		c.placed = append(c.placed, explore[next])
	}

	n := len(c.placed)
	for end := DiversityWindow; end <= n; end += DiversityWindow {
		c.repair(end-DiversityWindow, end, end == n)
	}
	if n%DiversityWindow != 0 {
		c.repair(max(0, n-DiversityWindow), n, true)
	}

	page := Page{Forks: make([]Scored, n), Exploration: next, Swaps: c.swaps}
	for i, idx := range c.placed {
		page.Forks[i] = pool[idx]
	}
	if terminal {
		return page
	}

	last := page.Forks[n-1]
	nextState := &State{
		Page:    st.Page + 1,
		AsOf:    st.AsOf,
		LastKey: Key{Score: last.Score.Total, CreatedAt: last.Fork.CreatedAt},
		Shown:   make(map[uint64]struct{}, len(st.Shown)+n),
	}
	nextState.Seed, _ = SeedFor(actorID, nextState.Page)
	for id := range st.Shown {
		nextState.Shown[id] = struct{}{}
	}
	for _, s := range page.Forks {
		nextState.Shown[ShortID(s.Fork.ID)] = struct{}{}
	}
	page.Next = nextState
	return page
}

// pickExploration draws up to slots pool indexes from candidates ranked below the
// exploitation cut whose quality clears the floor.
func pickExploration(pool []Scored, cut, slots int, rng *rand.Rand) []int {
	if slots <= 0 {
		return nil
	}
	var eligible []int
	for i := cut; i < len(pool); i++ {
		if pool[i].Score.Quality > ExplorationQualityMin {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) < slots {
		slots = len(eligible)
	}
	for k := 0; k < slots; k++ {
		j := k + rng.IntN(len(eligible)-k)
		eligible[k], eligible[j] = eligible[j], eligible[k]
	}
	return eligible[:slots]
}

type composition struct {
	pool   []Scored
	taken  []bool
	placed []int
	swaps  int
}

// bestExploit returns the untaken candidate with the highest score once the
// placement-time diversity bonus is applied. Ties go to the better rank.
func (c *composition) bestExploit() int {
	prevLane := ""
	if len(c.placed) > 0 {
		prevLane = c.pool[c.placed[len(c.placed)-1]].Fork.Lane
	}
	best, bestScore := -1, 0.0
	for i, s := range c.pool {
		if c.taken[i] {
			continue
		}
		score := s.Score.Total
		if prevLane != "" && s.Fork.Lane != prevLane {
			score += DiversityBonus
		}
		if best < 0 || score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func laneOf(f *models.Fork) string     { return f.Lane }
func mutationOf(f *models.Fork) string { return f.MutationCategory() }

type categoryFunc func(*models.Fork) string

// repair enforces the lane and mutation-type minimums on placed[lo:hi]. The
// trailing window of the page may take forks from any other position; earlier
// windows only take forks whose move leaves the donor's window no less diverse.
// When the page and the pool cannot supply a missing category the window is
// left as is.
func (c *composition) repair(lo, hi int, trailing bool) {
	for i := 0; i < hi-lo; i++ {
		if c.fix(lo, hi, laneOf, mutationOf, MinLanes, trailing) {
			continue
		}
		if c.fix(lo, hi, mutationOf, laneOf, MinMutationTypes, trailing) {
			continue
		}
		return
	}
}

// fix adds one missing category on the key dimension if the window needs it.
func (c *composition) fix(lo, hi int, key, other categoryFunc, minimum int, trailing bool) bool {
	if len(c.distinct(lo, hi, key)) >= minimum {
		return false
	}
	return c.swap(lo, hi, key, other) ||
		c.trade(lo, hi, key, other, true) ||
		(trailing && c.trade(lo, hi, key, other, false))
}

func (c *composition) distinct(lo, hi int, key categoryFunc) map[string]int {
	counts := make(map[string]int)
	for _, idx := range c.placed[lo:hi] {
		counts[key(c.pool[idx].Fork)]++
	}
	return counts
}

// victims returns the window positions holding the dominant category, lowest
// ranked first. A category held once cannot give up a fork.
func (c *composition) victims(lo, hi int, key categoryFunc) (map[string]int, []int) {
	counts := c.distinct(lo, hi, key)
	dominant, top := "", 0
	for k, n := range counts {
		if n > top || (n == top && k < dominant) {
			dominant, top = k, n
		}
	}
	if top < 2 {
		return counts, nil
	}

	var out []int
	for pos := lo; pos < hi; pos++ {
		if key(c.pool[c.placed[pos]].Fork) == dominant {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return c.placed[out[i]] > c.placed[out[j]] })
	return counts, out
}

// swap replaces a dominant-category window item with the highest-ranked free
// candidate of a category the window lacks. The swap must add a category on
// this dimension and must not lose one on the other.
func (c *composition) swap(lo, hi int, key, other categoryFunc) bool {
	counts, victims := c.victims(lo, hi, key)
	if len(victims) == 0 {
		return false
	}

	otherBefore := len(c.distinct(lo, hi, other))
	for _, pos := range victims {
		victim := c.placed[pos]
		for cand := range c.pool {
			if c.taken[cand] {
				continue
			}
			if _, present := counts[key(c.pool[cand].Fork)]; present {
				continue
			}
			c.placed[pos] = cand
			if len(c.distinct(lo, hi, other)) >= otherBefore {
				c.taken[victim] = false
				c.taken[cand] = true
				c.swaps++
				return true
			}
			c.placed[pos] = victim
		}
	}
	return false
}

// trade moves a fork of a missing category from elsewhere on the page into the
// window by exchanging positions with a dominant-category window item. Page
// membership and size are unchanged. With guarded set, the donor's own window
// must keep its lane and mutation minimums (or its current counts when already
// below them).
func (c *composition) trade(lo, hi int, key, other categoryFunc, guarded bool) bool {
	counts, victims := c.victims(lo, hi, key)
	if len(victims) == 0 {
		return false
	}

	var donors []int
	for pos, idx := range c.placed {
		if pos >= lo && pos < hi {
			continue
		}
		if _, present := counts[key(c.pool[idx].Fork)]; !present {
			donors = append(donors, pos)
		}
	}
	if len(donors) == 0 {
		return false
	}
	sort.Slice(donors, func(i, j int) bool { return c.placed[donors[i]] < c.placed[donors[j]] })

	otherBefore := len(c.distinct(lo, hi, other))
	for _, v := range victims {
		for _, d := range donors {
			dlo := d / DiversityWindow * DiversityWindow
			dhi := min(dlo+DiversityWindow, len(c.placed))
			lanes, muts := len(c.distinct(dlo, dhi, laneOf)), len(c.distinct(dlo, dhi, mutationOf))

			c.placed[v], c.placed[d] = c.placed[d], c.placed[v]
			ok := len(c.distinct(lo, hi, other)) >= otherBefore
			if ok && guarded {
				ok = len(c.distinct(dlo, dhi, laneOf)) >= min(lanes, MinLanes) &&
					len(c.distinct(dlo, dhi, mutationOf)) >= min(muts, MinMutationTypes)
			}
			if ok {
				c.swaps++
				return true
			}
			c.placed[v], c.placed[d] = c.placed[d], c.placed[v]
		}
	}
	return false
}
