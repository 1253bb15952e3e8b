package stage

import (
	"runtime"
	"time"

	"go.uber.org/zap"
)

// Clock supplies the current time to the stages.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock {
	return systemClock{}
}

// DefaultDiagnosisWorkers returns 80% of the available CPUs, at least one.
func DefaultDiagnosisWorkers() int {
	n := runtime.NumCPU() * 8 / 10
	if n < 1 {
		return 1
	}
	return n
}

func clockOrDefault(c Clock) Clock {
	if c == nil {
		return SystemClock()
	}
	return c
}

func loggerOrNop(l *zap.Logger, name string) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.Named(name)
}
