package fiscal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"statpay/internal/domain/payroll"
	"statpay/internal/platform/metrics"
)

var errVersionRequired = errors.New("fiscal parameter file must set a version")

// Source publishes the current fiscal parameter set. Readers always get a
// validated, immutable copy; a rejected reload keeps the previous set.
type Source struct {
	path    string
	log     *zap.Logger
	metrics *metrics.Collector

	fileBacked bool

	mu       sync.Mutex
	reloadMu sync.Mutex
	watcher  *viper.Viper
	current  atomic.Value // payroll.FiscalParameters
	group    singleflight.Group
}

// NewSource loads path, or the compiled defaults when path is empty or does
// not exist. A file that exists but fails validation is an error.
func NewSource(path string, log *zap.Logger, m *metrics.Collector) (*Source, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Source{path: path, log: log.Named("fiscal"), metrics: m}

	if path == "" {
		s.log.Info("no fiscal parameter file configured, using defaults")
		s.current.Store(payroll.DefaultFiscalParameters())
		return s, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		s.log.Warn("fiscal parameter file not found, using defaults", zap.String("path", path))
		s.current.Store(payroll.DefaultFiscalParameters())
		return s, nil
	}

	params, err := s.read()
	if err != nil {
		return nil, err
	}
	s.fileBacked = true
	s.current.Store(params)
	s.log.Info("fiscal parameters loaded", zap.String("path", path), zap.String("version", params.Version))
	return s, nil
}

// Snapshot returns a deep copy of the current parameter set, so one batch
// runs against a single consistent set even if a reload happens meanwhile.
func (s *Source) Snapshot() payroll.FiscalParameters {
	return s.current.Load().(payroll.FiscalParameters).Clone()
}

func (s *Source) Version() string {
	return s.current.Load().(payroll.FiscalParameters).Version
}

// Watch reloads the file whenever it changes on disk. The watching viper
// instance belongs to its own goroutine; reloads decode from a fresh one.
func (s *Source) Watch() {
	if !s.fileBacked {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return
	}
	s.watcher = viper.New()
	s.watcher.SetConfigFile(s.path)
	s.watcher.OnConfigChange(func(e fsnotify.Event) {
		s.reload(e.Name)
	})
	s.watcher.WatchConfig()
}

// Refresh re-reads the file. Concurrent callers share one read.
func (s *Source) Refresh(ctx context.Context) (payroll.FiscalParameters, error) {
	if !s.fileBacked {
		return s.Snapshot(), nil
	}
	result := s.group.DoChan("refresh", func() (any, error) {
		return s.reload(s.path)
	})
	select {
	case <-ctx.Done():
		return payroll.FiscalParameters{}, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return payroll.FiscalParameters{}, res.Err
		}
		return res.Val.(payroll.FiscalParameters).Clone(), nil
	}
}

// reload reads and publishes under reloadMu so watcher and refresh
// publications never interleave.
func (s *Source) reload(origin string) (payroll.FiscalParameters, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	params, err := s.read()
	if !s.apply(params, err, origin) {
		return payroll.FiscalParameters{}, err
	}
	return params, nil
}

// read decodes the file through a viper instance owned by this call.
func (s *Source) read() (payroll.FiscalParameters, error) {
	v := viper.New()
	v.SetConfigFile(s.path)
	if err := v.ReadInConfig(); err != nil {
		return payroll.FiscalParameters{}, fmt.Errorf("read fiscal parameters %s: %w", s.path, err)
	}
	return decode(v)
}

func (s *Source) apply(params payroll.FiscalParameters, err error, origin string) bool {
	if err != nil {
		s.log.Warn("fiscal parameter reload rejected", zap.String("origin", origin), zap.Error(err))
		s.metrics.ObserveFiscalReload(metrics.FiscalReloadRejected)
		return false
	}
	previous := s.Version()
	s.current.Store(params)
	s.metrics.ObserveFiscalReload(metrics.FiscalReloadApplied)
	if previous != params.Version {
		s.log.Info("fiscal parameters reloaded",
			zap.String("origin", origin),
			zap.String("previous", previous),
			zap.String("version", params.Version),
		)
	}
	return true
}

func decode(v *viper.Viper) (payroll.FiscalParameters, error) {
	var params payroll.FiscalParameters
	if err := v.Unmarshal(&params, viper.DecodeHook(decimalHook)); err != nil {
		return payroll.FiscalParameters{}, fmt.Errorf("decode fiscal parameters: %w", err)
	}
	if strings.TrimSpace(params.Version) == "" {
		return payroll.FiscalParameters{}, errVersionRequired
	}
	// viper lower-cases map keys; risk categories are upper-case.
	rates := make(map[string]decimal.Decimal, len(params.RiskRateByCategory))
	for category, rate := range params.RiskRateByCategory {
		rates[strings.ToUpper(category)] = rate
	}
	params.RiskRateByCategory = rates
	if err := params.Validate(); err != nil {
		return payroll.FiscalParameters{}, err
	}
	return params, nil
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

func decimalHook(from, to reflect.Type, data any) (any, error) {
	if to != decimalType {
		return data, nil
	}
	switch value := data.(type) {
	case string:
		return decimal.NewFromString(strings.TrimSpace(value))
	case float64:
		return decimal.NewFromFloat(value), nil
	case float32:
		return decimal.NewFromFloat32(value), nil
	case int:
		return decimal.NewFromInt(int64(value)), nil
	case int64:
		return decimal.NewFromInt(value), nil
	case uint64:
		return decimal.NewFromUint64(value), nil
	default:
		return nil, fmt.Errorf("cannot decode %s into a decimal", from)
	}
}
