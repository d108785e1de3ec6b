package captcha

import (
	"context"
	"fmt"
	"image"
	"sync"
)

// Input carries the downloaded challenge images for a solver. Which
// fields are set depends on the kind: slide and rotate use both images,
// the click kinds only the background.
type Input struct {
	Kind       Kind
	Background image.Image
	Piece      image.Image
}

// Solver turns a challenge input into a Result. Implementations must be
// safe for concurrent use; a solver returning common.ErrCaptchaCanceled
// aborts the retry loop.
type Solver func(ctx context.Context, in *Input) (*Result, error)

var (
	solverMux sync.RWMutex
	// built-in kind slots plus custom kinds, both install-once
	solverMap = make(map[Kind]Solver)
)

// SetSolver installs a solver for a built-in or custom kind. Each slot
// may only be filled once per process; the slide slot ships pre-filled
// with the template-matching guesser.
func SetSolver(kind Kind, s Solver) error {
	solverMux.Lock()
	defer solverMux.Unlock()

	if _, ok := solverMap[kind]; ok {
		return fmt.Errorf("captcha: solver for kind %q already registered", kind)
	}
	solverMap[kind] = s

	return nil
}

// OverrideSolver replaces a slot unconditionally. Meant for callers that
// want to supplant the built-in slide guesser.
func OverrideSolver(kind Kind, s Solver) {
	solverMux.Lock()
	defer solverMux.Unlock()

	solverMap[kind] = s
}

func lookupSolver(kind Kind) (Solver, bool) {
	solverMux.RLock()
	defer solverMux.RUnlock()

	s, ok := solverMap[kind]
	return s, ok
}

func init() {
	solverMap[KindSlide] = solveSlideGuess
}
