package discovery

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mikehamer/crazypilot/event"
	"github.com/mikehamer/crazypilot/hardware"
)

// report emits every detection before any loss.
func report[T hardware.Keyed](logger hclog.Logger, kind string, detected, lost []T, onDetected, onLost *event.Dispatcher[T]) {
	for _, item := range detected {
		logger.Info(kind+" detected", kind, item.Key())
		onDetected.Emit(item)
	}
	for _, item := range lost {
		logger.Info(kind+" lost", kind, item.Key())
		onLost.Emit(item)
	}
}
