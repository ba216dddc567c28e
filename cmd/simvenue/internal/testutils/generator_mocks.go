package testutils

import (
	"sync"
	"time"
)

type MockClock struct {
	CurrentTime time.Time
	mu          sync.Mutex
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CurrentTime
}

func (m *MockClock) Sleep(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CurrentTime = m.CurrentTime.Add(d)
}

type MockRand struct {
	ValFloat float64
}

func (m *MockRand) Float64() float64 { return m.ValFloat }

// SeqRand replays Vals in order, repeating the last one.
type SeqRand struct {
	Vals []float64
	i    int
}

func (s *SeqRand) Float64() float64 {
	v := s.Vals[s.i]
	if s.i < len(s.Vals)-1 {
		s.i++
	}
	return v
}
