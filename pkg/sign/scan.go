package sign

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cxsign/cxsign/pkg/activity"
	"github.com/cxsign/cxsign/pkg/common"
	"github.com/cxsign/cxsign/pkg/course"
	"github.com/cxsign/cxsign/pkg/location"
	"github.com/cxsign/cxsign/pkg/session"
)

const (
	// in-flight activity fetches per chunk; chunk boundaries are barriers
	scanChunkSize = 256

	// a course with no sign activity newer than this is considered cold
	excludeAge = 160 * 24 * time.Hour
)

// ExcludeCache is the persistent cold-course set the scanner consults
// and, on a refresh scan, rewrites.
type ExcludeCache interface {
	IsExcluded(courseID int64) bool
	Replace(courseIDs []int64) error
}

// Scanner walks a session's courses and returns the classified sign
// activities that are still open.
type Scanner struct {
	Engine   *Engine
	Details  *activity.DetailCache
	Excludes ExcludeCache
}

func NewScanner(e *Engine, excludes ExcludeCache) (*Scanner, error) {
	details, err := activity.NewDetailCache()
	if err != nil {
		return nil, err
	}

	return &Scanner{Engine: e, Details: details, Excludes: excludes}, nil
}

type courseResult struct {
	course course.Course
	signs  []activity.RawSign
	// newest start time across all sign activities, for exclusion
	newest int64
}

func (sc *Scanner) scanCourse(ctx context.Context, sess *session.Session, c course.Course) (courseResult, error) {
	result := courseResult{course: c}

	acts, err := activity.List(ctx, sess, c)
	if err != nil {
		if common.IsFatal(err) {
			return result, err
		}
		slog.WarnContext(ctx, "Skipping course, activity list failed", "course", c.Name, common.ErrAttr(err))
		return result, nil
	}

	for _, raw := range acts.Signs {
		if raw.StartTimeMs > result.newest {
			result.newest = raw.StartTimeMs
		}
		result.signs = append(result.signs, raw)
	}

	return result, nil
}

// Scan fetches activities for every course in 256-wide chunks and
// returns the classified sign inventory; callers gate attempts with
// RawSign.IsValid. With refreshExcludes unset, courses in the exclusion
// cache are skipped and the cache is left alone; with it set, every
// course is scanned, the cache is rewritten from what the scan saw and
// cold courses drop out of the result.
func (sc *Scanner) Scan(ctx context.Context, sess *session.Session, refreshExcludes bool) ([]Sign, error) {
	courses, err := course.List(ctx, sess)
	if err != nil {
		return nil, err
	}

	if !refreshExcludes && sc.Excludes != nil {
		kept := courses[:0]
		for _, c := range courses {
			if !sc.Excludes.IsExcluded(c.ID) {
				kept = append(kept, c)
			}
		}
		courses = kept
	}

	var (
		mu      sync.Mutex
		results []courseResult
	)

	for start := 0; start < len(courses); start += scanChunkSize {
		end := min(start+scanChunkSize, len(courses))

		g, gctx := errgroup.WithContext(ctx)
		for _, c := range courses[start:end] {
			g.Go(func() error {
				r, err := sc.scanCourse(gctx, sess, c)
				if err != nil {
					return err
				}

				mu.Lock()
				results = append(results, r)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	if refreshExcludes {
		cutoff := sc.Engine.now().Add(-excludeAge).UnixMilli()

		var cold []int64
		warm := results[:0]
		for _, r := range results {
			if r.newest < cutoff {
				cold = append(cold, r.course.ID)
			} else {
				warm = append(warm, r)
			}
		}
		results = warm
		sort.Slice(cold, func(i, j int) bool { return cold[i] < cold[j] })

		if sc.Excludes != nil {
			if err := sc.Excludes.Replace(cold); err != nil {
				slog.WarnContext(ctx, "Cannot persist course exclusions", common.ErrAttr(err))
			}
		}
	}

	return sc.classify(ctx, sess, results)
}

// classify resolves each raw sign into its variant, fetching the sign
// detail through the cache and the course's location log once per
// course that needs one.
func (sc *Scanner) classify(ctx context.Context, sess *session.Session, results []courseResult) ([]Sign, error) {
	var signs []Sign

	for _, r := range results {
		var presets map[int64]location.LocationWithRange

		for _, raw := range r.signs {
			detail, err := sc.Details.Get(ctx, sess, raw.ActiveID)
			if err != nil {
				if common.IsFatal(err) {
					return nil, err
				}
				slog.WarnContext(ctx, "Skipping activity, detail fetch failed", "activity", raw.Name, common.ErrAttr(err))
				continue
			}

			if (raw.OtherID == "2" || raw.OtherID == "4") && presets == nil {
				presets, err = activity.PresetLocations(ctx, sess, r.course)
				if err != nil {
					slog.WarnContext(ctx, "Cannot fetch course location log", "course", r.course.Name, common.ErrAttr(err))
					presets = map[int64]location.LocationWithRange{}
				}
			}

			signs = append(signs, Classify(raw, detail, presets))
		}
	}

	return signs, nil
}
