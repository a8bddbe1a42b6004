package grade

import (
	"context"
	"sort"
	"strings"
	"sync"

	"shs_lms/backend/internal/grading"
	"shs_lms/backend/internal/shared"
)

// ============================================================================
// LMS Collaborators
// ============================================================================

// ClassDirectory looks up class offerings
type ClassDirectory interface {
	GetClass(ctx context.Context, classID string) (*shared.ClassInfo, error)
}

// RosterProvider lists the students of a class section
type RosterProvider interface {
	ListRoster(ctx context.Context, classID, section string) ([]shared.RosterEntry, error)
}

// ActivityProvider returns activity definitions and graded scores. Scores
// from every submission source arrive normalized as grading.ActivityScore.
type ActivityProvider interface {
	ListActivities(ctx context.Context, classID string, quarter grading.Quarter) ([]grading.Activity, error)
	ListScores(ctx context.Context, classID string, activityIDs []string) ([]grading.ActivityScore, error)
}

// PeriodProvider supplies the active academic period
type PeriodProvider interface {
	ActivePeriod(ctx context.Context) (grading.Period, error)
}

// Providers bundles the collaborators the service reads from
type Providers struct {
	Classes    ClassDirectory
	Roster     RosterProvider
	Activities ActivityProvider
	Periods    PeriodProvider
}

// ============================================================================
// In-memory Directory
// ============================================================================

// MemoryDirectory implements every provider interface over in-process data.
// Tests and the local seeder use it.
type MemoryDirectory struct {
	mu         sync.RWMutex
	classes    map[string]shared.ClassInfo
	roster     []shared.RosterEntry
	activities []grading.Activity
	scores     []grading.ActivityScore
	period     *grading.Period
}

// NewMemoryDirectory creates an empty directory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{classes: map[string]shared.ClassInfo{}}
}

// Providers returns d wired as every collaborator
func (d *MemoryDirectory) Providers() Providers {
	return Providers{Classes: d, Roster: d, Activities: d, Periods: d}
}

func (d *MemoryDirectory) AddClass(c shared.ClassInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.classes[c.ID] = c
}

func (d *MemoryDirectory) AddStudents(entries ...shared.RosterEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roster = append(d.roster, entries...)
}

func (d *MemoryDirectory) AddActivities(activities ...grading.Activity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activities = append(d.activities, activities...)
}

func (d *MemoryDirectory) AddScores(scores ...grading.ActivityScore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scores = append(d.scores, scores...)
}

func (d *MemoryDirectory) SetActivePeriod(p grading.Period) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.period = &p
}

func (d *MemoryDirectory) GetClass(ctx context.Context, classID string) (*shared.ClassInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.classes[classID]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (d *MemoryDirectory) ListRoster(ctx context.Context, classID, section string) ([]shared.RosterEntry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := []shared.RosterEntry{}
	for _, e := range d.roster {
		if e.ClassID == classID && strings.EqualFold(e.Section, section) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentName < out[j].StudentName })
	return out, nil
}

func (d *MemoryDirectory) ListActivities(ctx context.Context, classID string, quarter grading.Quarter) ([]grading.Activity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := []grading.Activity{}
	for _, a := range d.activities {
		if a.ClassID == classID && a.Quarter == quarter {
			out = append(out, a)
		}
	}
	return out, nil
}

func (d *MemoryDirectory) ListScores(ctx context.Context, classID string, activityIDs []string) ([]grading.ActivityScore, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	wanted := make(map[string]bool, len(activityIDs))
	for _, id := range activityIDs {
		wanted[id] = true
	}
	out := []grading.ActivityScore{}
	for _, s := range d.scores {
		if wanted[s.ActivityID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (d *MemoryDirectory) ActivePeriod(ctx context.Context) (grading.Period, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.period == nil {
		return grading.Period{}, ErrNotFound
	}
	return *d.period, nil
}
