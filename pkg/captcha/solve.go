package captcha

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"

	"github.com/cxsign/cxsign/pkg/common"
)

const solveAttempts = 3

// Solve runs the full challenge loop for one sign attempt: fetch the
// server time, then up to three rounds of fetch-solve-check with
// ts, ts+1, ts+2 as secret seeds. Returns the validate string the sign
// URL needs. Fatal errors (unsupported kind, user cancellation, broken
// endpoint config) abort immediately; anything else is logged and
// retried.
func (c *Client) Solve(ctx context.Context, kind Kind, captchaID, referer string) (string, error) {
	solver, ok := lookupSolver(kind)
	if !ok {
		return "", fmt.Errorf("%w: %q", common.ErrCaptchaUnsupported, kind)
	}

	ts, err := c.ServerTime(ctx, captchaID)
	if err != nil {
		return "", err
	}

	boff := &backoff.Backoff{
		Min:    200 * time.Millisecond,
		Max:    2 * time.Second,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt < solveAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(boff.Duration()):
			}
		}

		validate, err := c.solveOnce(ctx, solver, kind, captchaID, referer, ts+int64(attempt))
		if err == nil {
			return validate, nil
		}
		if common.IsFatal(err) || ctx.Err() != nil {
			return "", err
		}

		slog.WarnContext(ctx, "Captcha attempt failed", "kind", kind, "attempt", attempt+1, common.ErrAttr(err))
		lastErr = err
	}

	return "", fmt.Errorf("captcha not solved after %d attempts: %w", solveAttempts, lastErr)
}

func (c *Client) solveOnce(ctx context.Context, solver Solver, kind Kind, captchaID, referer string, ts int64) (string, error) {
	ch, err := c.GetChallenge(ctx, kind, captchaID, referer, ts)
	if err != nil {
		return "", err
	}

	in, err := c.loadInput(ctx, ch)
	if err != nil {
		return "", err
	}

	result, err := solver(ctx, in)
	if err != nil {
		return "", err
	}
	result.Kind = kind

	return c.Check(ctx, ch, result, ts)
}
