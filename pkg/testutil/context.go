/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"
)

// Set to a number of minutes to override test context timeouts (useful when debugging tests).
const testContextTimeoutEnvVar = "SQLS_PROXY_TEST_CONTEXT_TIMEOUT"

// GetTestContext returns a context that expires after testTimeout or at the test deadline, whichever comes first.
func GetTestContext(t *testing.T, testTimeout time.Duration) (context.Context, context.CancelFunc) {
	if timeoutStr, found := os.LookupEnv(testContextTimeoutEnvVar); found {
		timeout, err := strconv.ParseUint(timeoutStr, 10, 16)
		if err != nil {
			panic(fmt.Sprintf("Context timeout value '%s' is invalid: %s", timeoutStr, err.Error()))
		}
		return context.WithTimeout(context.Background(), time.Duration(timeout)*time.Minute)
	}

	deadline, haveDeadline := t.Deadline()

	switch {
	case !haveDeadline && testTimeout == 0:
		return context.WithCancel(context.Background())

	case haveDeadline && testTimeout == 0:
		return context.WithDeadline(context.Background(), deadline)

	case !haveDeadline:
		return context.WithTimeout(context.Background(), testTimeout)

	default:
		// Take shorter of the two deadlines
		if testDeadline := time.Now().Add(testTimeout); testDeadline.Before(deadline) {
			deadline = testDeadline
		}
		return context.WithDeadline(context.Background(), deadline)
	}
}
