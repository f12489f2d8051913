/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package osutil

import (
	"os"
	"slices"
	"strings"
	"time"
)

var truthyValues = []string{"1", "true", "on", "yes"}

// lookupEnv returns the value of an environment variable with surrounding whitespace removed.
// A variable that is set to a blank value counts as unset.
func lookupEnv(varName string) (string, bool) {
	value, found := os.LookupEnv(varName)
	value = strings.TrimSpace(value)
	return value, found && value != ""
}

// EnvVarSwitchEnabled returns true if the variable is set to "1", "true", "on" or "yes" (in any case).
func EnvVarSwitchEnabled(varName string) bool {
	value, found := lookupEnv(varName)
	return found && slices.Contains(truthyValues, strings.ToLower(value))
}

func EnvVarStringWithDefault(varName string, defaultVal string) string {
	if value, found := lookupEnv(varName); found {
		return value
	}
	return defaultVal
}

// EnvVarDurationValWithDefault parses the variable as a Go duration ("1.5s", "200ms").
// Missing, empty, invalid and negative values yield the default.
func EnvVarDurationValWithDefault(varName string, defaultVal time.Duration) time.Duration {
	value, found := lookupEnv(varName)
	if !found {
		return defaultVal
	}

	duration, err := time.ParseDuration(value)
	if err != nil || duration < 0 {
		return defaultVal
	}
	return duration
}
