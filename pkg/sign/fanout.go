package sign

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cxsign/cxsign/pkg/common"
	"github.com/cxsign/cxsign/pkg/session"
)

// SignAll runs one sign across every session and reports per-uid
// outcomes. Refreshing-QR attempts run concurrently because the enc
// window is short; every other variant is cheap enough sequentially.
// Errors never escape: they surface as failed outcomes in the map.
func (e *Engine) SignAll(ctx context.Context, sg *Sign, sessions []*session.Session, data *Data) map[string]Outcome {
	outcomes := make(map[string]Outcome, len(sessions))

	record := func(outcome Outcome, err error) Outcome {
		if err != nil {
			outcome = Failed(err.Error())
		}

		result := "fail"
		if outcome.Success {
			result = "ok"
		}
		e.metrics().ObserveSign(sg.Kind.String(), result)

		return outcome
	}

	if sg.Kind != KindQrCodeRefreshing {
		for _, sess := range sessions {
			outcome, err := e.SignSession(ctx, sess, sg, data)
			outcomes[sess.UID()] = record(outcome, err)
		}
		return outcomes
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, sess := range sessions {
		wg.Add(1)
		go func(sess *session.Session) {
			defer wg.Done()

			outcome, err := e.SignSession(ctx, sess, sg, data)
			if err != nil {
				slog.WarnContext(common.UIDContext(ctx, sess.UID()), "Sign attempt failed", common.ErrAttr(err))
			}

			mu.Lock()
			outcomes[sess.UID()] = record(outcome, err)
			mu.Unlock()
		}(sess)
	}
	wg.Wait()

	return outcomes
}
