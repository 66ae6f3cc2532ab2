package obs

import (
	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// StartProfiler pushes continuous profiles to a pyroscope server. The
// returned stop func is safe to call when profiling is disabled.
func StartProfiler(enabled bool, appName, serverAddress, instanceID string, log *zap.SugaredLogger) (func(), error) {
	if !enabled {
		return func() {}, nil
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: appName,
		ServerAddress:   serverAddress,
		Tags: map[string]string{
			"instance": instanceID,
		},
		Logger: log,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, err
	}
	return func() {
		if err := profiler.Stop(); err != nil {
			log.Warnw("profiler_stop_failed", "err", err)
		}
	}, nil
}
