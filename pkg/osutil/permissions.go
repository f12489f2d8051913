/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package osutil

import "os"

const (
	PermissionOnlyOwnerReadWrite           os.FileMode = 0600
	PermissionOnlyOwnerReadWriteSetCurrent os.FileMode = 0700 // For directories
	PermissionOnlyOwnerReadWriteExecute    os.FileMode = 0700 // For files
)
