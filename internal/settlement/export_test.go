package settlement

import "time"

func (e *Engine) SetSecretSource(fn func() (string, error)) { e.secrets = fn }

func (e *Engine) SetClock(fn func() time.Time) { e.now = fn }
