package gazecaptcha

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
)

// challengePool hands out challenge ids in random order without repeats.
// When it runs dry it reloads every id and starts a new round.
type challengePool struct {
	mu    sync.Mutex
	rng   *rand.Rand
	ids   []string
	round int
}

func newChallengePool(seed uint64) *challengePool {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &challengePool{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// next pops one id. reloaded is true when this call started a new round.
func (p *challengePool) next(ctx context.Context, load func(context.Context) ([]string, error)) (id string, round, remaining int, reloaded bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.ids) == 0 {
		ids, err := load(ctx)
		if err != nil {
			return "", p.round, 0, false, fmt.Errorf("%w: %v", ErrChallengeLoad, err)
		}
		if len(ids) == 0 {
			return "", p.round, 0, false, ErrNoChallenge
		}
		p.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		p.ids = ids
		p.round++
		reloaded = true
	}

	last := len(p.ids) - 1
	id = p.ids[last]
	p.ids = p.ids[:last]
	return id, p.round, len(p.ids), reloaded, nil
}

// remove drops id from the current round, if present.
func (p *challengePool) remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, v := range p.ids {
		if v == id {
			p.ids = append(p.ids[:i], p.ids[i+1:]...)
			return
		}
	}
}

func (p *challengePool) stats() (round, remaining int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.round, len(p.ids)
}
