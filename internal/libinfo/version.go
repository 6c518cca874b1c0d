/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

// Package libinfo exposes the library's own module version so that it can be
// attached to emitted telemetry.
package libinfo

import (
	"regexp"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const libShortName = "go-basekit"

const moduleName = "github.com/velumlabs/" + libShortName

// PrometheusLibVersionLabel is the label under which the library version is exported.
const PrometheusLibVersionLabel = "go_basekit_version"

// AddPrometheusLibVersionLabel returns a copy of labels with the library version label added.
func AddPrometheusLibVersionLabel(labels prometheus.Labels) prometheus.Labels {
	withVersion := make(prometheus.Labels, len(labels)+1)
	for k, v := range labels {
		withVersion[k] = v
	}
	withVersion[PrometheusLibVersionLabel] = GetLibVersion()
	return withVersion
}

// Module path as it appears among build dependencies,
// with an optional major-version suffix ("…/go-basekit/v2").
var modulePathRegexp = regexp.MustCompile(`^` + regexp.QuoteMeta(moduleName) + `(/v[0-9]+)?$`)

var (
	libVersion     string
	libVersionOnce sync.Once
)

// GetLibVersion returns the library version recorded in the binary's build info,
// or "v0.0.0" when the binary carries no such record (tests, replace directives).
func GetLibVersion() string {
	libVersionOnce.Do(func() {
		libVersion = readLibVersion()
	})
	return libVersion
}

func readLibVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range info.Deps {
			if modulePathRegexp.MatchString(dep.Path) {
				return dep.Version
			}
		}
	}
	return "v0.0.0"
}
