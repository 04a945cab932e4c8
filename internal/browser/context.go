package browser

import "context"

// CombineContext returns a context that carries primary's values and is
// cancelled when either primary or secondary is done. Session operations use it
// so that both the session lifetime and the caller's request bound the work.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
