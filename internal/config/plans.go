package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlanDefinition describes how a plan is presented. It never changes which
// plan codes are accepted for activation.
type PlanDefinition struct {
	Code        string   `mapstructure:"code" json:"code"`
	Name        string   `mapstructure:"name" json:"name"`
	Description string   `mapstructure:"description" json:"description"`
	Features    []string `mapstructure:"features" json:"features"`
}

type PlanCatalog struct {
	Plans []PlanDefinition `mapstructure:"plans" json:"plans"`
}

var knownPlanCodes = map[string]struct{}{
	"free":       {},
	"pro":        {},
	"enterprise": {},
}

func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		Plans: []PlanDefinition{
			{Code: "free", Name: "Free", Description: "For individuals getting started", Features: []string{"1 dashboard", "7 day history"}},
			{Code: "pro", Name: "Pro", Description: "For growing teams", Features: []string{"Unlimited dashboards", "90 day history", "Integrations"}},
			{Code: "enterprise", Name: "Enterprise", Description: "For large organizations", Features: []string{"Unlimited history", "Audit log export", "Priority support"}},
		},
	}
}

type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

// NewPlanCatalogHolder reads plans.yml when present and keeps watching it.
func NewPlanCatalogHolder(log *zap.Logger) (*PlanCatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/insightboard")
	v.AddConfigPath(".")

	v.SetEnvPrefix("INSIGHTBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	holder := &PlanCatalogHolder{}
	if !watch {
		holder.current.Store(DefaultPlanCatalog())
		return holder, nil
	}

	var catalog PlanCatalog
	if err := v.Unmarshal(&catalog); err != nil {
		return nil, err
	}
	if err := validatePlanCatalog(catalog); err != nil {
		return nil, err
	}
	holder.current.Store(catalog)

	log = log.Named("config.plans")
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanCatalog
		if err := v.Unmarshal(&updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validatePlanCatalog(updated); err != nil {
			log.Warn("invalid plan catalog ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("plan catalog reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticPlanCatalogHolder is used by tests and tools that skip file loading.
func NewStaticPlanCatalogHolder(catalog PlanCatalog) *PlanCatalogHolder {
	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)
	return holder
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

func validatePlanCatalog(catalog PlanCatalog) error {
	if len(catalog.Plans) == 0 {
		return errors.New("plans cannot be empty")
	}
	seen := make(map[string]struct{}, len(catalog.Plans))
	for _, plan := range catalog.Plans {
		if _, ok := knownPlanCodes[plan.Code]; !ok {
			return fmt.Errorf("unknown plan code %q", plan.Code)
		}
		if _, dup := seen[plan.Code]; dup {
			return fmt.Errorf("duplicate plan code %q", plan.Code)
		}
		seen[plan.Code] = struct{}{}
	}
	return nil
}
