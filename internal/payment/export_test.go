package payment

import "time"

func (w *Workflow) SetClock(fn func() time.Time) { w.now = fn }
