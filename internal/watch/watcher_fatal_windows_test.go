// SPDX-License-Identifier: MPL-2.0

//go:build windows

package watch

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestFatalFsnotifyErrors(t *testing.T) {
	t.Parallel()

	for _, err := range []error{errnoTooManyOpenFiles, errnoInvalidHandle, errnoNotEnoughMemory, fmt.Errorf("read: %w", errnoInvalidHandle)} {
		if !isFatalFsnotifyError(err) {
			t.Errorf("%v should be fatal", err)
		}
	}
	for _, err := range []error{syscall.Errno(5), errors.New("queue overflow")} {
		if isFatalFsnotifyError(err) {
			t.Errorf("%v should not be fatal", err)
		}
	}
}
