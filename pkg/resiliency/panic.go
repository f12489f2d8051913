/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package resiliency

import (
	"fmt"
	"runtime/debug"

	"github.com/go-logr/logr"
)

// PanicError is a recovered panic value together with the stack of the goroutine that panicked.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value if it was an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// MakePanicError logs a recovered panic value with the current call stack and returns it as a *PanicError.
// Must be called from the deferred function that recovered. Returns nil if there was no panic.
func MakePanicError(panicVal any, log logr.Logger, msg string) error {
	if panicVal == nil {
		return nil
	}

	panicErr := &PanicError{Value: panicVal, Stack: string(debug.Stack())}
	log.Error(panicErr, msg, "stack", panicErr.Stack)
	return panicErr
}
