package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// AllocationRules holds the business rules of cross-store allocations that
// operators may tune without a redeploy.
type AllocationRules struct {
	DefaultCurrency string          `mapstructure:"defaultCurrency"`
	CashMethods     []string        `mapstructure:"cashMethods"`
	ReasonCodes     ReasonCodes     `mapstructure:"reasonCodes"`
	Expense         ExpenseDefaults `mapstructure:"expense"`
}

// ReasonCodes are written on cash ledger postings.
type ReasonCodes struct {
	Reimbursement         string `mapstructure:"reimbursement"`
	ReimbursementReversal string `mapstructure:"reimbursementReversal"`
}

// ExpenseDefaults apply to mirrored expenses when the caller omits them.
type ExpenseDefaults struct {
	Type string `mapstructure:"type"`
}

func DefaultAllocationRules() AllocationRules {
	return AllocationRules{
		DefaultCurrency: "USD",
		CashMethods:     []string{"cash"},
		ReasonCodes: ReasonCodes{
			Reimbursement:         "cross_store_reimbursement",
			ReimbursementReversal: "cross_store_reimbursement_reversal",
		},
		Expense: ExpenseDefaults{Type: "cross_store_allocation"},
	}
}

// IsCashMethod reports whether a reimbursement method settles in cash.
func (r AllocationRules) IsCashMethod(method string) bool {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		return false
	}
	for _, candidate := range r.CashMethods {
		if strings.ToLower(strings.TrimSpace(candidate)) == method {
			return true
		}
	}
	return false
}

type AllocationRulesHolder struct {
	current atomic.Value // holds AllocationRules
}

// NewStaticAllocationRules returns a holder that never reloads.
func NewStaticAllocationRules(rules AllocationRules) *AllocationRulesHolder {
	holder := &AllocationRulesHolder{}
	holder.current.Store(rules)
	return holder
}

func NewAllocationRulesHolder(cfg Config) (*AllocationRulesHolder, error) {
	v := viper.New()

	if cfg.AllocationRulesPath != "" {
		v.SetConfigFile(cfg.AllocationRulesPath)
	} else {
		v.SetConfigName("allocation")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/storesplit")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("STORESPLIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultAllocationRules()
	v.SetDefault("allocation.defaultCurrency", defaults.DefaultCurrency)
	v.SetDefault("allocation.cashMethods", defaults.CashMethods)
	v.SetDefault("allocation.reasonCodes.reimbursement", defaults.ReasonCodes.Reimbursement)
	v.SetDefault("allocation.reasonCodes.reimbursementReversal", defaults.ReasonCodes.ReimbursementReversal)
	v.SetDefault("allocation.expense.type", defaults.Expense.Type)

	fileLoaded := true
	if cfg.AllocationRulesPath != "" {
		if _, err := os.Stat(cfg.AllocationRulesPath); errors.Is(err, fs.ErrNotExist) {
			fileLoaded = false
		}
	}
	if fileLoaded {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
			fileLoaded = false
		}
	}

	var rules AllocationRules
	if err := v.UnmarshalKey("allocation", &rules); err != nil {
		return nil, err
	}
	if err := validateAllocationRules(rules); err != nil {
		return nil, err
	}

	holder := NewStaticAllocationRules(rules)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated AllocationRules
			if err := v.UnmarshalKey("allocation", &updated); err != nil {
				log.Printf("[allocation-config] reload failed: %v", err)
				return
			}
			if err := validateAllocationRules(updated); err != nil {
				log.Printf("[allocation-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[allocation-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *AllocationRulesHolder) Get() AllocationRules {
	if h == nil {
		return DefaultAllocationRules()
	}
	rules, ok := h.current.Load().(AllocationRules)
	if !ok {
		return DefaultAllocationRules()
	}
	return rules
}

func validateAllocationRules(rules AllocationRules) error {
	if strings.TrimSpace(rules.DefaultCurrency) == "" {
		return errors.New("allocation.defaultCurrency cannot be empty")
	}
	if strings.TrimSpace(rules.ReasonCodes.Reimbursement) == "" ||
		strings.TrimSpace(rules.ReasonCodes.ReimbursementReversal) == "" {
		return errors.New("allocation.reasonCodes cannot be empty")
	}
	if strings.TrimSpace(rules.Expense.Type) == "" {
		return errors.New("allocation.expense.type cannot be empty")
	}
	return nil
}
