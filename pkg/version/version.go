// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package version

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"github.com/coreos/go-semver/semver"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Set with -ldflags "-X" at build time.
var (
	ReleaseVersion = "None"
	BuildTS        = "None"
	GitHash        = "None"
	GitBranch      = "None"
)

var versionHash = regexp.MustCompile("-[0-9]+-g[0-9a-f]{7,}(-dev)?")

func removeVAndHash(v string) string {
	if v == "" {
		return v
	}
	v = versionHash.ReplaceAllLiteralString(v, "")
	v = strings.TrimSuffix(v, "-dirty")
	return strings.TrimPrefix(v, "v")
}

// ReleaseSemver returns the semantic version of ReleaseVersion, or an empty
// string if ReleaseVersion is not a release tag.
func ReleaseSemver() string {
	v, err := semver.NewVersion(removeVAndHash(ReleaseVersion))
	if err != nil {
		return ""
	}
	return v.String()
}

// Info is the build information of the running binary.
type Info struct {
	Release   string
	Semver    string
	GitHash   string
	GitBranch string
	BuildTS   string
	GoVersion string
}

// Current returns the build information of the running binary.
func Current() Info {
	return Info{
		Release:   ReleaseVersion,
		Semver:    ReleaseSemver(),
		GitHash:   GitHash,
		GitBranch: GitBranch,
		BuildTS:   BuildTS,
		GoVersion: runtime.Version(),
	}
}

func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Release Version: %s\n", i.Release)
	if i.Semver != "" {
		fmt.Fprintf(&b, "Semantic Version: %s\n", i.Semver)
	}
	fmt.Fprintf(&b, "Git Commit Hash: %s\n", i.GitHash)
	fmt.Fprintf(&b, "Git Branch: %s\n", i.GitBranch)
	fmt.Fprintf(&b, "UTC Build Time: %s\n", i.BuildTS)
	fmt.Fprintf(&b, "Go Version: %s\n", i.GoVersion)
	return b.String()
}

// LogVersionInfo logs the build information at startup of app.
func LogVersionInfo(app string) {
	i := Current()
	log.Info("Welcome to "+app,
		zap.String("release-version", i.Release),
		zap.String("semver", i.Semver),
		zap.String("git-hash", i.GitHash),
		zap.String("git-branch", i.GitBranch),
		zap.String("utc-build-time", i.BuildTS),
		zap.String("go-version", i.GoVersion))
}
