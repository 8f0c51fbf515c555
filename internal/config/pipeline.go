package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PipelineConfig holds the tunables of the monthly CDR run.
type PipelineConfig struct {
	Timezone           string        `mapstructure:"timezone"`
	PollStep           time.Duration `mapstructure:"pollStep"`
	PollMaxWait        time.Duration `mapstructure:"pollMaxWait"`
	PollTimeout        time.Duration `mapstructure:"pollTimeout"`
	RunDay             int           `mapstructure:"runDay"`
	RunHour            int           `mapstructure:"runHour"`
	InvoiceHour        int           `mapstructure:"invoiceHour"`
	VATRate            string        `mapstructure:"vatRate"`
	InvoiceConcurrency int           `mapstructure:"invoiceConcurrency"`
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Timezone:           "Europe/Brussels",
		PollStep:           time.Second,
		PollMaxWait:        10 * time.Second,
		PollTimeout:        10 * time.Minute,
		RunDay:             1,
		RunHour:            3,
		InvoiceHour:        4,
		VATRate:            "0.21",
		InvoiceConcurrency: 4,
	}
}

// Location resolves the configured timezone, falling back to UTC.
func (c PipelineConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type PipelineHolder struct {
	current atomic.Value // holds PipelineConfig
}

// NewStaticPipelineHolder returns a holder that never reloads.
func NewStaticPipelineHolder(cfg PipelineConfig) *PipelineHolder {
	holder := &PipelineHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPipelineHolder(log *zap.Logger) (*PipelineHolder, error) {
	v := viper.New()

	v.SetConfigName("pipeline")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/cdrbill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CDRBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setPipelineDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg, err := decodePipeline(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPipelineHolder(cfg)

	if v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodePipeline(v)
			if err != nil {
				log.Warn("pipeline config reload ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("pipeline config reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

func (h *PipelineHolder) Get() PipelineConfig {
	return h.current.Load().(PipelineConfig)
}

func setPipelineDefaults(v *viper.Viper) {
	d := DefaultPipelineConfig()
	v.SetDefault("pipeline.timezone", d.Timezone)
	v.SetDefault("pipeline.pollStep", d.PollStep)
	v.SetDefault("pipeline.pollMaxWait", d.PollMaxWait)
	v.SetDefault("pipeline.pollTimeout", d.PollTimeout)
	v.SetDefault("pipeline.runDay", d.RunDay)
	v.SetDefault("pipeline.runHour", d.RunHour)
	v.SetDefault("pipeline.invoiceHour", d.InvoiceHour)
	v.SetDefault("pipeline.vatRate", d.VATRate)
	v.SetDefault("pipeline.invoiceConcurrency", d.InvoiceConcurrency)
}

func decodePipeline(v *viper.Viper) (PipelineConfig, error) {
	// Unmarshal merges defaults per leaf key; UnmarshalKey would not.
	var doc struct {
		Pipeline PipelineConfig `mapstructure:"pipeline"`
	}
	if err := v.Unmarshal(&doc); err != nil {
		return PipelineConfig{}, err
	}
	if err := validatePipelineConfig(doc.Pipeline); err != nil {
		return PipelineConfig{}, err
	}
	return doc.Pipeline, nil
}

func validatePipelineConfig(cfg PipelineConfig) error {
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("pipeline.timezone: %w", err)
	}
	if cfg.PollStep <= 0 || cfg.PollMaxWait < cfg.PollStep || cfg.PollTimeout <= 0 {
		return errors.New("pipeline poll durations must be positive and pollMaxWait >= pollStep")
	}
	if cfg.RunDay < 1 || cfg.RunDay > 28 {
		return errors.New("pipeline.runDay must be between 1 and 28")
	}
	if cfg.RunHour < 0 || cfg.RunHour > 23 || cfg.InvoiceHour < 0 || cfg.InvoiceHour > 23 {
		return errors.New("pipeline hours must be between 0 and 23")
	}
	if cfg.InvoiceConcurrency < 1 {
		return errors.New("pipeline.invoiceConcurrency must be at least 1")
	}
	return nil
}
