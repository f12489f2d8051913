/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package resiliency

import (
	"time"
)

// Waits for the channel to be closed (or to deliver a value) for at most the specified timeout.
// Returns true if the channel fired before the timeout.
func WaitWithTimeout[T any](ch <-chan T, timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}

// Runs a function and returns when the function returns or when the specified timeout is reached.
// Returns true if the function returned before the timeout.
// The function keeps running in the background if the timeout is reached.
func RunWithTimeout(op func(), timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		op()
	}()
	return WaitWithTimeout(done, timeout)
}
