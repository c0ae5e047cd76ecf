package node

import (
	"time"

	"github.com/obsidianstack/combinator/pkg/types"
)

// Throttle passes a child sample through only if it is more than the
// cooldown later than the last emitted one. Values are never altered. The
// first sample always passes because the last emission starts at Genesis.
type Throttle struct {
	output
	child    Source
	cooldown time.Duration
	lastEmit types.Time
}

// NewThrottle takes ownership of child.
func NewThrottle(child Source, cooldown time.Duration) *Throttle {
	return &Throttle{child: child, cooldown: cooldown, lastEmit: types.Genesis}
}

func (t *Throttle) Child() Source { return t.child }

func (t *Throttle) Cooldown() time.Duration { return t.cooldown }

// LastEmit returns the time of the last sample let through.
func (t *Throttle) LastEmit() types.Time { return t.lastEmit }

func (t *Throttle) Update() {
	t.child.Update()

	for t.child.HasInput() {
		s := t.child.Peek()
		t.child.Discard()

		if s.Time.Sub(t.lastEmit) > t.cooldown {
			t.lastEmit = s.Time
			t.out.Put(s)
		}
	}
}
