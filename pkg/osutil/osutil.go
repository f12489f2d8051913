/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package osutil

import (
	"runtime"
	"strings"
	"unicode"
)

var (
	lf   = []byte("\n")
	crlf = []byte("\r\n")
)

func IsWindows() bool {
	return runtime.GOOS == "windows"
}

// WithNewline returns a copy of b followed by the platform line separator.
func WithNewline(b []byte) []byte {
	sep := LineSep()
	retval := make([]byte, 0, len(b)+len(sep))
	retval = append(retval, b...)
	return append(retval, sep...)
}

func LineSep() []byte {
	if IsWindows() {
		return crlf
	} else {
		return lf
	}
}

// HasOnlyValidFilenameChars returns true if s can be used as (a part of) a file name on all supported platforms.
func HasOnlyValidFilenameChars(s string) bool {
	if s == "" || strings.HasSuffix(s, " ") || strings.HasSuffix(s, ".") {
		return false
	}

	return !strings.ContainsFunc(s, func(r rune) bool {
		return unicode.IsControl(r) || strings.ContainsRune(`<>:"/\|?*`, r)
	})
}
