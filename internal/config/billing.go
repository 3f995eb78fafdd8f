package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	UnitModeQuarterHour  = "quarter_hour"
	UnitModePayerDivisor = "payer_divisor"
)

// BillingRules holds the tunable parts of the unit/amount calculation.
type BillingRules struct {
	SupervisoryTags       []string `mapstructure:"supervisoryTags"`
	DefaultMinutesPerUnit int      `mapstructure:"defaultMinutesPerUnit"`
	UnitMode              string   `mapstructure:"unitMode"`
	InvoicePrefix         string   `mapstructure:"invoicePrefix"`
}

func DefaultBillingRules() BillingRules {
	return BillingRules{
		SupervisoryTags:       []string{"supervisory"},
		DefaultMinutesPerUnit: 15,
		UnitMode:              UnitModeQuarterHour,
		InvoicePrefix:         "INV",
	}
}

// IsSupervisoryTag reports whether tag is one of the configured supervisory service tags.
func (r BillingRules) IsSupervisoryTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return false
	}
	for _, candidate := range r.SupervisoryTags {
		if strings.EqualFold(strings.TrimSpace(candidate), tag) {
			return true
		}
	}
	return false
}

type BillingRulesHolder struct {
	current atomic.Value // holds BillingRules
}

// NewStaticBillingRules returns a holder that never reloads.
func NewStaticBillingRules(rules BillingRules) *BillingRulesHolder {
	holder := &BillingRulesHolder{}
	holder.current.Store(rules)
	return holder
}

func NewBillingRulesHolder() (*BillingRulesHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/carebill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CAREBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingRules()
	v.SetDefault("billing.supervisoryTags", defaults.SupervisoryTags)
	v.SetDefault("billing.defaultMinutesPerUnit", defaults.DefaultMinutesPerUnit)
	v.SetDefault("billing.unitMode", defaults.UnitMode)
	v.SetDefault("billing.invoicePrefix", defaults.InvoicePrefix)

	configFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		configFound = false
	}

	var rules BillingRules
	if err := v.UnmarshalKey("billing", &rules); err != nil {
		return nil, err
	}
	if err := validateBillingRules(rules); err != nil {
		return nil, err
	}

	holder := NewStaticBillingRules(rules)
	if !configFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingRules
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-rules] reload failed: %v", err)
			return
		}
		if err := validateBillingRules(updated); err != nil {
			log.Printf("[billing-rules] invalid rules ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-rules] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *BillingRulesHolder) Get() BillingRules {
	if h == nil {
		return DefaultBillingRules()
	}
	return h.current.Load().(BillingRules)
}

func validateBillingRules(rules BillingRules) error {
	if len(rules.SupervisoryTags) == 0 {
		return errors.New("billing.supervisoryTags cannot be empty")
	}
	if rules.DefaultMinutesPerUnit <= 0 {
		return errors.New("billing.defaultMinutesPerUnit must be positive")
	}
	switch rules.UnitMode {
	case UnitModeQuarterHour, UnitModePayerDivisor:
	default:
		return errors.New("billing.unitMode must be quarter_hour or payer_divisor")
	}
	if strings.TrimSpace(rules.InvoicePrefix) == "" {
		return errors.New("billing.invoicePrefix cannot be empty")
	}
	return nil
}
