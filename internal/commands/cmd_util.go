/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"os"

	"github.com/MrTomatePNG/zed-sqls-extension/pkg/logger"
	"github.com/MrTomatePNG/zed-sqls-extension/pkg/osutil"
)

// ErrorExit logs the error, writes it to stderr, and exits the process with the given code.
func ErrorExit(log *logger.Logger, err error, exitCode int) {
	log.Error(err, "Exiting due to error")
	_, _ = os.Stderr.Write(osutil.WithNewline([]byte(err.Error())))
	log.Flush()
	os.Exit(exitCode)
}
