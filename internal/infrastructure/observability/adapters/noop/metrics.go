// Package noop discards all metrics
package noop

import "github.com/hicsail/kidney-web/internal/application/ports"

type Metrics struct{}

func NewMetrics() *Metrics { return &Metrics{} }

func (m *Metrics) IncrementCounter(name string, tags map[string]string) {}

func (m *Metrics) RecordHistogram(name string, value float64, tags map[string]string) {}

func (m *Metrics) RecordGauge(name string, value float64, tags map[string]string) {}

func (m *Metrics) WithTags(tags map[string]string) ports.Metrics { return m }
