package scheduler

import (
	"errors"
	"fmt"
)

var (
	ErrJobAlreadyRegistered   = errors.New("scheduler: job already registered")
	ErrJobNotFound            = errors.New("scheduler: job not found")
	ErrSchedulerNotConfigured = errors.New("scheduler: no jobs registered")
	ErrInvalidJob             = errors.New("scheduler: job needs a name, a schedule and a function")
	ErrInvalidSchedule        = errors.New("scheduler: schedule does not advance")
	ErrJobSkipped             = errors.New("scheduler: job is held elsewhere")
	ErrJobPanicked            = errors.New("scheduler: job panicked")
)

func errorFromPanic(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
