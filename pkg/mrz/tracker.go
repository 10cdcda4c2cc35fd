package mrz

import "sync"

const (
	DefaultMinCount = 10
	// about one second of camera frames
	DefaultMaxAge = 30
)

type sighting struct {
	lastSeen int64
	count    int
}

// Tracker accumulates readings over a series of frames and reports a reading
// once it has been seen often enough. Readings not seen for MaxAge frames are forgotten.
// It is safe for concurrent use.
type Tracker struct {
	MinCount int
	MaxAge   int64

	mu        sync.Mutex
	frame     int64
	seen      map[string]*sighting
	best      string
	bestCount int
}

func NewTracker() *Tracker {
	return &Tracker{MinCount: DefaultMinCount, MaxAge: DefaultMaxAge}
}

// LogFrame records the readings of one frame. An empty frame still advances the frame counter.
func (t *Tracker) LogFrame(readings ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seen == nil {
		t.seen = make(map[string]*sighting)
	}
	for _, r := range readings {
		s, ok := t.seen[r]
		if !ok {
			s = &sighting{}
			t.seen[r] = s
		}
		s.lastSeen = t.frame
		s.count++
	}
	t.best, t.bestCount = "", 0
	for r, s := range t.seen {
		if s.lastSeen < t.frame-t.maxAge() {
			delete(t.seen, r)
			continue
		}
		// ties go to the lexically smaller reading to keep the result deterministic
		if s.count > t.bestCount || s.count == t.bestCount && r < t.best {
			t.best, t.bestCount = r, s.count
		}
	}
	t.frame++
}

// Stable returns the most frequent reading if it has been seen at least MinCount times.
func (t *Tracker) Stable() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bestCount == 0 || t.bestCount < t.minCount() {
		return "", false
	}
	return t.best, true
}

// Reset forgets the given readings, so they have to be seen MinCount times again before one is reported.
// Without arguments, everything is forgotten.
func (t *Tracker) Reset(readings ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(readings) == 0 {
		t.seen = nil
	}
	for _, r := range readings {
		delete(t.seen, r)
	}
	t.best, t.bestCount = "", 0
}

func (t *Tracker) minCount() int {
	if t.MinCount <= 0 {
		return DefaultMinCount
	}
	return t.MinCount
}

func (t *Tracker) maxAge() int64 {
	if t.MaxAge <= 0 {
		return DefaultMaxAge
	}
	return t.MaxAge
}
