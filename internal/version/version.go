/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package version

import (
	"runtime/debug"
	"strconv"
	"time"
)

const (
	DevelopmentVersion = "dev"
)

// Set at build time with -ldflags "-X".
var (
	ProductVersion = DevelopmentVersion
	CommitHash     = ""
	BuildTimestamp = ""
)

// buildTime serializes as an RFC 3339 string, or null if unknown.
type buildTime struct {
	time.Time
}

func (t buildTime) MarshalJSON() ([]byte, error) {
	if t.Time.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.Time.UTC().Format(time.RFC3339))), nil
}

type VersionOutput struct {
	Version    string    `json:"version"`
	CommitHash string    `json:"commitHash,omitempty"`
	BuildTime  buildTime `json:"buildTimestamp"`
	GoVersion  string    `json:"goVersion,omitempty"`
}

func Version() VersionOutput {
	output := VersionOutput{
		Version:    ProductVersion,
		CommitHash: CommitHash,
	}
	if output.Version == "" {
		output.Version = DevelopmentVersion
	}

	if BuildTimestamp != "" {
		if seconds, err := strconv.ParseInt(BuildTimestamp, 10, 64); err == nil {
			output.BuildTime = buildTime{time.Unix(seconds, 0)}
		} else if parsed, timeErr := time.Parse(time.RFC3339, BuildTimestamp); timeErr == nil {
			output.BuildTime = buildTime{parsed}
		}
	}

	// Binaries installed with "go install" carry the module version and VCS data.
	if info, ok := debug.ReadBuildInfo(); ok {
		output.GoVersion = info.GoVersion
		if output.Version == DevelopmentVersion && info.Main.Version != "" && info.Main.Version != "(devel)" {
			output.Version = info.Main.Version
		}
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && output.CommitHash == "" {
				output.CommitHash = setting.Value
			}
		}
	}

	return output
}
