package obs

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// BuildInfo describes the running binary and the store it serves from.
type BuildInfo struct {
	Version string
	Commit  string
	Store   string
}

var (
	buildInfoOnce sync.Once

	// buildInfo: gauge со значением 1, одна серия на процесс.
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "usermanager_build_info",
			Help: "User manager build information and active store driver.",
		},
		[]string{"version", "commit", "store", "go_version"},
	)
)

// InitBuildInfo publishes bi. A missing commit is taken from the VCS stamp
// the Go toolchain embeds. Calling it again replaces the previous series.
func InitBuildInfo(bi BuildInfo) BuildInfo {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	if bi.Commit == "" || bi.Commit == "none" {
		bi.Commit = vcsRevision()
	}
	if bi.Version == "" {
		bi.Version = "dev"
	}
	buildInfo.Reset()
	buildInfo.WithLabelValues(bi.Version, bi.Commit, bi.Store, runtime.Version()).Set(1)
	return bi
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return "unknown"
}
