package sync

import (
	"log"
	"sync"
	"time"
)

// Pinger probes the remote system of record
type Pinger interface {
	Ping() error
}

// Monitor watches connectivity to the remote system of record and fires
// callbacks on the offline→online transition, so queued work starts moving
// the moment the device comes back into coverage.
type Monitor struct {
	mu sync.RWMutex

	pinger   Pinger
	interval time.Duration

	online  bool
	running bool

	stopChan chan struct{}
	onOnline []func()
}

// NewMonitor creates a new connectivity monitor
func NewMonitor(pinger Pinger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		pinger:   pinger,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// OnOnline registers a callback fired on every offline→online transition.
// Register before Start.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	m.onOnline = append(m.onOnline, fn)
	m.mu.Unlock()
}

// Start begins periodic health checking
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.CheckNow()
	go m.loop()
}

// Stop stops health checking
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()
	close(m.stopChan)
}

// IsOnline returns the last observed connectivity state
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// CheckNow probes the remote once and handles any state transition.
// Returns the resulting online state.
func (m *Monitor) CheckNow() bool {
	err := m.pinger.Ping()
	nowOnline := err == nil

	m.mu.Lock()
	wasOnline := m.online
	m.online = nowOnline
	callbacks := m.onOnline
	m.mu.Unlock()

	if nowOnline && !wasOnline {
		log.Println("📡 Connectivity restored")
		for _, fn := range callbacks {
			go fn()
		}
	} else if !nowOnline && wasOnline {
		log.Printf("📴 Connectivity lost: %v", err)
	}

	return nowOnline
}

// loop periodically checks connectivity
func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CheckNow()
		case <-m.stopChan:
			return
		}
	}
}
