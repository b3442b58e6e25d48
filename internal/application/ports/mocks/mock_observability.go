package mocks

import (
	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/stretchr/testify/mock"
)

// MockLogger is a mock implementation of ports.Logger
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Info(msg string, fields ...interface{}) {
	m.Called(msg, fields)
}

func (m *MockLogger) Error(msg string, fields ...interface{}) {
	m.Called(msg, fields)
}

func (m *MockLogger) Warn(msg string, fields ...interface{}) {
	m.Called(msg, fields)
}

func (m *MockLogger) WithFields(fields map[string]interface{}) ports.Logger {
	args := m.Called(fields)
	if logger, ok := args.Get(0).(ports.Logger); ok {
		return logger
	}
	return m
}

// MockMetrics is a mock implementation of ports.Metrics
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) IncrementCounter(name string, tags map[string]string) {
	m.Called(name, tags)
}

func (m *MockMetrics) RecordHistogram(name string, value float64, tags map[string]string) {
	m.Called(name, value, tags)
}

func (m *MockMetrics) RecordGauge(name string, value float64, tags map[string]string) {
	m.Called(name, value, tags)
}

func (m *MockMetrics) WithTags(tags map[string]string) ports.Metrics {
	args := m.Called(tags)
	if metrics, ok := args.Get(0).(ports.Metrics); ok {
		return metrics
	}
	return m
}

// MockObservability is a mock implementation of ports.Observability
type MockObservability struct {
	mock.Mock
}

func (m *MockObservability) Components() (ports.Logger, ports.Metrics, error) {
	args := m.Called()
	return loggerArg(args, 0), metricsArg(args, 1), args.Error(2)
}

func (m *MockObservability) ComponentsScoped(component string) (ports.Logger, ports.Metrics, error) {
	args := m.Called(component)
	return loggerArg(args, 0), metricsArg(args, 1), args.Error(2)
}

func (m *MockObservability) LoggerScoped(component string) (ports.Logger, error) {
	args := m.Called(component)
	return loggerArg(args, 0), args.Error(1)
}

func (m *MockObservability) MetricsScoped(component string) (ports.Metrics, error) {
	args := m.Called(component)
	return metricsArg(args, 0), args.Error(1)
}

func loggerArg(args mock.Arguments, i int) ports.Logger {
	if l, ok := args.Get(i).(ports.Logger); ok {
		return l
	}
	return nil
}

func metricsArg(args mock.Arguments, i int) ports.Metrics {
	if m, ok := args.Get(i).(ports.Metrics); ok {
		return m
	}
	return nil
}

// NewQuietObservability returns an observability mock whose loggers and
// metrics accept any call.
func NewQuietObservability() (*MockObservability, *MockLogger, *MockMetrics) {
	logger := &MockLogger{}
	logger.On("Info", mock.Anything, mock.Anything).Maybe()
	logger.On("Error", mock.Anything, mock.Anything).Maybe()
	logger.On("Warn", mock.Anything, mock.Anything).Maybe()
	logger.On("WithFields", mock.Anything).Return(logger).Maybe()

	metrics := &MockMetrics{}
	metrics.On("IncrementCounter", mock.Anything, mock.Anything).Maybe()
	metrics.On("RecordHistogram", mock.Anything, mock.Anything, mock.Anything).Maybe()
	metrics.On("RecordGauge", mock.Anything, mock.Anything, mock.Anything).Maybe()
	metrics.On("WithTags", mock.Anything).Return(metrics).Maybe()

	obs := &MockObservability{}
	obs.On("Components").Return(logger, metrics, nil).Maybe()
	obs.On("ComponentsScoped", mock.Anything).Return(logger, metrics, nil).Maybe()
	obs.On("LoggerScoped", mock.Anything).Return(logger, nil).Maybe()
	obs.On("MetricsScoped", mock.Anything).Return(metrics, nil).Maybe()

	return obs, logger, metrics
}
