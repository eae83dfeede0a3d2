// Package version identifies the running parley build.
package version

import (
	"runtime/debug"
	"sync"
)

// commitOverride is injected through -ldflags for builds without VCS
// metadata, such as container builds from an exported source tree.
var commitOverride string

var commit = sync.OnceValue(func() string {
	if commitOverride != "" {
		return shortRev(commitOverride)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return shortRev(s.Value)
			}
		}
	}
	return "dev"
})

func shortRev(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Commit returns the short VCS revision baked into the binary, or "dev"
// when none is known.
func Commit() string {
	return commit()
}

// Full reports the build as "parley/<commit>" for logs and user-agent
// strings.
func Full() string {
	return "parley/" + commit()
}
