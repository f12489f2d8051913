/*---------------------------------------------------------------------------------------------
 *  Copyright (c) MrTomatePNG. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package version

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVersionOutputJSON(t *testing.T) {
	t.Parallel()

	out := VersionOutput{
		Version:    "1.2.3",
		CommitHash: "abc123",
		BuildTime:  buildTime{time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	data, err := json.Marshal(out)
	require.NoError(t, err)
	require.JSONEq(t, `{"version":"1.2.3","commitHash":"abc123","buildTimestamp":"2024-05-01T12:00:00Z"}`, string(data))

	data, err = json.Marshal(VersionOutput{Version: DevelopmentVersion})
	require.NoError(t, err)
	require.JSONEq(t, `{"version":"dev","buildTimestamp":null}`, string(data))
}

func TestVersionDefaultsToDevelopment(t *testing.T) {
	t.Parallel()

	require.NotEmpty(t, Version().Version)
}
