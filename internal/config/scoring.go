package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ScoringConfig controls the lead scoring category caps, point values and
// qualification thresholds. It lives in scoring.yml so operators can tune
// the model without a redeploy.
type ScoringConfig struct {
	Categories CategoryPoints `mapstructure:"categories"`
	Thresholds Thresholds     `mapstructure:"thresholds"`
	// Domains treated as personal mailboxes when scoring email quality.
	FreeMailDomains []string `mapstructure:"freeMailDomains"`
}

type CategoryPoints struct {
	Profile      ProfilePoints      `mapstructure:"profile"`
	EmailQuality EmailQualityPoints `mapstructure:"emailQuality"`
	Engagement   EngagementPoints   `mapstructure:"engagement"`
	Opportunity  OpportunityPoints  `mapstructure:"opportunity"`
}

type ProfilePoints struct {
	Cap         int `mapstructure:"cap"`
	HasCompany  int `mapstructure:"hasCompany"`
	HasPosition int `mapstructure:"hasPosition"`
	HasPhone    int `mapstructure:"hasPhone"`
}

type EmailQualityPoints struct {
	Cap             int `mapstructure:"cap"`
	CorporateDomain int `mapstructure:"corporateDomain"`
	FreeMailDomain  int `mapstructure:"freeMailDomain"`
}

type EngagementPoints struct {
	Cap            int `mapstructure:"cap"`
	PerInteraction int `mapstructure:"perInteraction"`
	RecentContact  int `mapstructure:"recentContact"`
	RecentDays     int `mapstructure:"recentDays"`
}

type OpportunityPoints struct {
	Cap            int   `mapstructure:"cap"`
	HasOpen        int   `mapstructure:"hasOpen"`
	HighValue      int   `mapstructure:"highValue"`
	HighValueCents int64 `mapstructure:"highValueCents"`
}

type Thresholds struct {
	Hot  int `mapstructure:"hot"`
	Warm int `mapstructure:"warm"`
}

func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Categories: CategoryPoints{
			Profile:      ProfilePoints{Cap: 30, HasCompany: 15, HasPosition: 10, HasPhone: 5},
			EmailQuality: EmailQualityPoints{Cap: 20, CorporateDomain: 20, FreeMailDomain: 5},
			Engagement:   EngagementPoints{Cap: 30, PerInteraction: 5, RecentContact: 10, RecentDays: 14},
			Opportunity:  OpportunityPoints{Cap: 20, HasOpen: 10, HighValue: 10, HighValueCents: 1_000_000},
		},
		Thresholds: Thresholds{Hot: 75, Warm: 45},
		FreeMailDomains: []string{
			"gmail.com", "yahoo.com", "hotmail.com", "outlook.com",
			"aol.com", "icloud.com", "proton.me", "protonmail.com",
		},
	}
}

// ScoringConfigHolder hands out the current scoring configuration and hot
// reloads it when scoring.yml changes on disk.
type ScoringConfigHolder struct {
	current atomic.Value // holds ScoringConfig
}

func NewScoringConfigHolder() (*ScoringConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("scoring")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/freshcrm/config") // Volume-mounted config
	v.AddConfigPath("/etc/freshcrm")            // System config
	v.AddConfigPath(".")                        // Current directory (dev mode)

	v.SetEnvPrefix("FRESHCRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg := DefaultScoringConfig()
	if fileFound {
		loaded := DefaultScoringConfig()
		if err := v.UnmarshalKey("scoring", &loaded); err != nil {
			return nil, err
		}
		if err := validateScoringConfig(loaded); err != nil {
			return nil, err
		}
		cfg = loaded
	}

	holder := &ScoringConfigHolder{}
	holder.current.Store(cfg)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated := DefaultScoringConfig()
			if err := v.UnmarshalKey("scoring", &updated); err != nil {
				log.Printf("[scoring-config] reload failed: %v", err)
				return
			}
			if err := validateScoringConfig(updated); err != nil {
				log.Printf("[scoring-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[scoring-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

// NewStaticScoringConfigHolder returns a holder pinned to the given config.
// Used by tests that need deterministic weights.
func NewStaticScoringConfigHolder(cfg ScoringConfig) *ScoringConfigHolder {
	holder := &ScoringConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *ScoringConfigHolder) Get() ScoringConfig {
	return h.current.Load().(ScoringConfig)
}

func validateScoringConfig(cfg ScoringConfig) error {
	caps := cfg.Categories
	total := caps.Profile.Cap + caps.EmailQuality.Cap + caps.Engagement.Cap + caps.Opportunity.Cap
	if total != 100 {
		return errors.New("scoring.categories caps must sum to 100")
	}
	if cfg.Thresholds.Hot <= cfg.Thresholds.Warm {
		return errors.New("scoring.thresholds.hot must exceed warm")
	}
	return nil
}
