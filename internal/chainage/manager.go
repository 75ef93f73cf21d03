package chainage

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pipetrax/fieldsyncgo/internal/models"
)

// CacheStore is the slice of the local durable store the cache manager needs
type CacheStore interface {
	ReplaceAll(entries []models.ChainageCacheEntry) error
	All() ([]models.ChainageCacheEntry, error)
	Get(activityType string) (*models.ChainageCacheEntry, error)
	OldestUpdate() (time.Time, bool, error)
}

// RemoteRange is one activity interval as reported by the remote system of
// record, chainages still in field notation
type RemoteRange struct {
	ReportDate   string
	Spread       string
	ActivityType string
	StationStart string
	StationEnd   string
}

// RangeSource provides the bounded recent window of historical activity
// ranges used to rebuild the cache
type RangeSource interface {
	RecentActivityRanges(limit int) ([]RemoteRange, error)
}

// BlockRange is a report block being checked against the cache
type BlockRange struct {
	BlockID      string
	ActivityType string
	StationStart string
	StationEnd   string
}

// OverlapWarning flags one pairwise interval overlap between a block being
// composed and a historical range of the same activity type
type OverlapWarning struct {
	BlockID      string               `json:"blockId"`
	ActivityType string               `json:"activityType"`
	BlockStart   float64              `json:"blockStart"`
	BlockEnd     float64              `json:"blockEnd"`
	Conflict     models.ChainageRange `json:"conflict"`
}

// Manager maintains the locally cached historical range summary and answers
// overlap checks without a network. Warnings are advisory only: an empty or
// stale cache degrades the answer, never blocks report creation.
type Manager struct {
	mu         sync.Mutex
	refreshing bool

	store  CacheStore
	source RangeSource

	staleAfter time.Duration
	window     int
}

// NewManager creates a new chainage cache manager
func NewManager(store CacheStore, source RangeSource, staleAfter time.Duration, window int) *Manager {
	if window <= 0 {
		window = 500
	}
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	return &Manager{
		store:      store,
		source:     source,
		staleAfter: staleAfter,
		window:     window,
	}
}

// Refresh rebuilds the whole cache from the remote recent window. Only one
// refresh runs at a time; a request while one is in flight is a no-op.
func (m *Manager) Refresh() error {
	m.mu.Lock()
	if m.refreshing {
		m.mu.Unlock()
		log.Println("⏳ Chainage refresh already in progress, skipping")
		return nil
	}
	m.refreshing = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.refreshing = false
		m.mu.Unlock()
	}()

	rows, err := m.source.RecentActivityRanges(m.window)
	if err != nil {
		return fmt.Errorf("failed to fetch recent activity ranges: %w", err)
	}

	grouped := make(map[string][]models.ChainageRange)
	for _, row := range rows {
		start, err := Parse(row.StationStart)
		if err != nil {
			continue // unparseable remote data is skipped, not fatal
		}
		end, err := Parse(row.StationEnd)
		if err != nil {
			continue
		}
		if end < start {
			start, end = end, start
		}
		grouped[row.ActivityType] = append(grouped[row.ActivityType], models.ChainageRange{
			ReportDate: row.ReportDate,
			Spread:     row.Spread,
			RangeStart: start,
			RangeEnd:   end,
		})
	}

	now := time.Now().UTC()
	entries := make([]models.ChainageCacheEntry, 0, len(grouped))
	for activityType, ranges := range grouped {
		entry := models.ChainageCacheEntry{
			ActivityType: activityType,
			UpdatedAt:    now,
		}
		if err := entry.EncodeRanges(ranges); err != nil {
			return fmt.Errorf("failed to encode ranges for %s: %w", activityType, err)
		}
		entries = append(entries, entry)
	}

	if err := m.store.ReplaceAll(entries); err != nil {
		return fmt.Errorf("failed to replace chainage cache: %w", err)
	}

	log.Printf("✅ Chainage cache rebuilt: %d activity types from %d ranges", len(entries), len(rows))
	return nil
}

// Snapshot returns every cached entry, for cache status display
func (m *Manager) Snapshot() ([]models.ChainageCacheEntry, error) {
	return m.store.All()
}

// EnsureFresh applies the staleness policy: if the cache is empty or older
// than the threshold and the device is online, refresh now. Offline, the
// cached data (or lack of it) is used as-is. Returns whether a refresh ran.
func (m *Manager) EnsureFresh(online bool) (bool, error) {
	if !online {
		return false, nil
	}

	oldest, ok, err := m.store.OldestUpdate()
	if err != nil {
		return false, err
	}
	if ok && time.Since(oldest) < m.staleAfter {
		return false, nil
	}

	return true, m.Refresh()
}

// CheckOverlapsOffline compares each block's chainage interval against every
// cached range of the same activity type, excluding ranges dated excludeDate
// (presumed to be the report being edited). Blocks whose chainage cannot be
// parsed are returned in skipped and do not abort the scan.
func (m *Manager) CheckOverlapsOffline(blocks []BlockRange, excludeDate string) (warnings []OverlapWarning, skipped []string, err error) {
	for _, block := range blocks {
		if block.StationStart == "" || block.StationEnd == "" {
			skipped = append(skipped, block.BlockID)
			continue
		}

		blockStart, perr := Parse(block.StationStart)
		if perr != nil {
			skipped = append(skipped, block.BlockID)
			continue
		}
		blockEnd, perr := Parse(block.StationEnd)
		if perr != nil {
			skipped = append(skipped, block.BlockID)
			continue
		}
		if blockEnd < blockStart {
			blockStart, blockEnd = blockEnd, blockStart
		}

		entry, gerr := m.store.Get(block.ActivityType)
		if gerr != nil {
			return nil, nil, gerr
		}
		if entry == nil {
			continue // no cached data for this activity: no warnings possible
		}

		ranges, derr := entry.DecodeRanges()
		if derr != nil {
			return nil, nil, derr
		}

		for _, r := range ranges {
			if r.ReportDate == excludeDate {
				continue
			}
			if overlaps(blockStart, blockEnd, r.RangeStart, r.RangeEnd) {
				warnings = append(warnings, OverlapWarning{
					BlockID:      block.BlockID,
					ActivityType: block.ActivityType,
					BlockStart:   blockStart,
					BlockEnd:     blockEnd,
					Conflict:     r,
				})
			}
		}
	}
	return warnings, skipped, nil
}

// overlaps reports whether two intervals share interior points. Touching
// endpoints do not count.
func overlaps(aMin, aMax, bMin, bMax float64) bool {
	return aMin < bMax && bMin < aMax
}
