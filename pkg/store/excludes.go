package store

import (
	"sort"
	"sync"
)

// Excludes is the mutex-guarded in-memory view of the exclude table.
// Mutations write through to the database; IsExcluded stays cheap for
// the scanner's hot path.
type Excludes struct {
	mu    sync.Mutex
	store *Store
	ids   map[int64]struct{}
}

// Excludes loads the persisted exclusion set.
func (s *Store) Excludes() (*Excludes, error) {
	rows, err := s.db.Query(`SELECT course_id FROM exclude`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Excludes{store: s, ids: ids}, nil
}

func (e *Excludes) IsExcluded(courseID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.ids[courseID]
	return ok
}

func (e *Excludes) All() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]int64, 0, len(e.ids))
	for id := range e.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

func (e *Excludes) Exclude(courseID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.ids[courseID]; ok {
		return nil
	}

	if _, err := e.store.db.Exec(`INSERT OR IGNORE INTO exclude (course_id) VALUES (?)`, courseID); err != nil {
		return err
	}
	e.ids[courseID] = struct{}{}

	return nil
}

func (e *Excludes) UnExclude(courseID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.ids[courseID]; !ok {
		return nil
	}

	if _, err := e.store.db.Exec(`DELETE FROM exclude WHERE course_id = ?`, courseID); err != nil {
		return err
	}
	delete(e.ids, courseID)

	return nil
}

// Replace swaps the whole set, as the refresh scan does at its end.
func (e *Excludes) Replace(courseIDs []int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.store.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM exclude`); err != nil {
		return err
	}
	for _, id := range courseIDs {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO exclude (course_id) VALUES (?)`, id); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	e.ids = make(map[int64]struct{}, len(courseIDs))
	for _, id := range courseIDs {
		e.ids[id] = struct{}{}
	}

	return nil
}
