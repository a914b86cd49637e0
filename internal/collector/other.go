//go:build !linux && !solaris

package collector

import "github.com/7c/centralmon/internal/wire"

// fallbackCollector is used on platforms without a dedicated back-end. It
// honours the "collector never throws" failure policy by returning
// zero-value best-effort samples rather than failing to build at all.
type fallbackCollector struct{}

func newPlatformCollector() Collector { return fallbackCollector{} }

func (fallbackCollector) CollectSystem() (wire.SystemSample, error) {
	return wire.SystemSample{CPUs: numCPU()}, nil
}

func (fallbackCollector) CollectProcess(name string) (wire.ProcessSample, error) {
	return wire.ProcessSample{Name: name}, nil
}
