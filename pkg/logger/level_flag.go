/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package logger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
)

var namedLevels = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

// StringToLevel parses a level name or a positive debug verbosity.
// Verbosity N maps to zap level -N, which is what logr V(N) logs at.
func StringToLevel(value string, defaultLevel zapcore.Level) (zapcore.Level, error) {
	value = strings.TrimSpace(value)
	if level, isNamed := namedLevels[strings.ToLower(value)]; isNamed {
		return level, nil
	}

	verbosity, err := strconv.Atoi(value)
	if err != nil || verbosity <= 0 || verbosity > 127 {
		return defaultLevel, fmt.Errorf("invalid log level \"%s\"", value)
	}
	return zapcore.Level(int8(-verbosity)), nil
}

// levelFlagValue is the value of the -v flag. Setting it changes the level of the console log.
type levelFlagValue struct {
	setLevel func(zapcore.Level)
	value    string
}

func (lfv *levelFlagValue) Set(flagValue string) error {
	level, err := StringToLevel(flagValue, zapcore.InfoLevel)
	if err != nil {
		return err
	}

	lfv.setLevel(level)
	lfv.value = flagValue
	return nil
}

func (lfv *levelFlagValue) String() string {
	return lfv.value
}

func (*levelFlagValue) Type() string {
	return "level"
}

var _ pflag.Value = (*levelFlagValue)(nil)
