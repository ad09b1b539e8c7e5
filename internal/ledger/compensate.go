package ledger

import (
	"context"
	"log"
)

type undoStep struct {
	name string
	fn   func(ctx context.Context) error
}

// undoLog collects reverting writes for the steps already applied by an
// operation. Run replays them newest first; a failing step is logged and the
// rest still run.
type undoLog struct {
	op    string
	steps []undoStep
}

func (u *undoLog) push(name string, fn func(ctx context.Context) error) {
	u.steps = append(u.steps, undoStep{name: name, fn: fn})
}

func (u *undoLog) run(ctx context.Context) (failed int) {
	ctx = context.WithoutCancel(ctx)
	for i := len(u.steps) - 1; i >= 0; i-- {
		s := u.steps[i]
		if err := s.fn(ctx); err != nil {
			failed++
			log.Printf("[LEDGER][%s][UNDO][ERR] step=%s err=%v", u.op, s.name, err)
			continue
		}
		log.Printf("[LEDGER][%s][UNDO] step=%s", u.op, s.name)
	}
	u.steps = nil
	return failed
}
