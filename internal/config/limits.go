package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Limits holds operational limits that can change without a restart.
type Limits struct {
	Invitations InvitationLimits `mapstructure:"invitations"`
}

// InvitationLimits bounds how fast one organization can send invitations.
type InvitationLimits struct {
	RatePerSecond float64 `mapstructure:"ratePerSecond"`
	Burst         int     `mapstructure:"burst"`
}

func DefaultLimits() Limits {
	return Limits{
		Invitations: InvitationLimits{
			RatePerSecond: 0.2,
			Burst:         10,
		},
	}
}

type LimitsHolder struct {
	current atomic.Value // holds Limits
}

// NewStaticLimitsHolder returns a holder that never reloads.
func NewStaticLimitsHolder(limits Limits) *LimitsHolder {
	holder := &LimitsHolder{}
	holder.current.Store(limits)
	return holder
}

func NewLimitsHolder(cfg Config) (*LimitsHolder, error) {
	v := viper.New()

	if cfg.LimitsFile != "" {
		v.SetConfigFile(cfg.LimitsFile)
	} else {
		v.SetConfigName("limits")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/tasklane")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TASKLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLimits()
	v.SetDefault("limits.invitations.ratePerSecond", defaults.Invitations.RatePerSecond)
	v.SetDefault("limits.invitations.burst", defaults.Invitations.Burst)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var limits Limits
	if err := v.UnmarshalKey("limits", &limits); err != nil {
		return nil, err
	}
	if err := validateLimits(limits); err != nil {
		return nil, err
	}

	holder := NewStaticLimitsHolder(limits)
	if !fileLoaded {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Limits
		if err := v.UnmarshalKey("limits", &updated); err != nil {
			zap.L().Warn("limits reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if err := validateLimits(updated); err != nil {
			zap.L().Warn("invalid limits ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		zap.L().Info("limits reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *LimitsHolder) Get() Limits {
	return h.current.Load().(Limits)
}

func validateLimits(limits Limits) error {
	if limits.Invitations.RatePerSecond <= 0 {
		return errors.New("limits.invitations.ratePerSecond must be positive")
	}
	if limits.Invitations.Burst < 1 {
		return errors.New("limits.invitations.burst must be at least 1")
	}
	return nil
}
