package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TariffRules are business parameters that operators tune without a release.
type TariffRules struct {
	HolidayMultiplier float64 `yaml:"holiday_multiplier"`
	WeekendMultiplier float64 `yaml:"weekend_multiplier"`
	DepositRate       float64 `yaml:"deposit_rate"`
	ExtraStopFee      float64 `yaml:"extra_stop_fee"`
}

func DefaultTariffRules() TariffRules {
	return TariffRules{
		HolidayMultiplier: 1.0,
		WeekendMultiplier: 1.0,
		DepositRate:       0.3,
		ExtraStopFee:      0,
	}
}

// LoadTariffRules overlays the YAML file at path on the defaults.
// An empty path returns the defaults.
func LoadTariffRules(path string) (TariffRules, error) {
	rules := DefaultTariffRules()
	if path == "" {
		return rules, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("read tariff rules: %w", err)
	}
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return rules, fmt.Errorf("parse tariff rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return rules, err
	}
	return rules, nil
}

func (r TariffRules) Validate() error {
	if r.HolidayMultiplier < 0 || r.WeekendMultiplier < 0 {
		return fmt.Errorf("tariff rules: multipliers must not be negative")
	}
	if r.DepositRate < 0 || r.DepositRate > 1 {
		return fmt.Errorf("tariff rules: deposit_rate must be within [0,1]")
	}
	if r.ExtraStopFee < 0 {
		return fmt.Errorf("tariff rules: extra_stop_fee must not be negative")
	}
	return nil
}

// SurchargeMultiplier picks the larger applicable multiplier; flags do
// not stack. The result is never below 1.
func (r TariffRules) SurchargeMultiplier(isHoliday, isWeekend bool) float64 {
	m := 1.0
	if isHoliday && r.HolidayMultiplier > m {
		m = r.HolidayMultiplier
	}
	if isWeekend && r.WeekendMultiplier > m {
		m = r.WeekendMultiplier
	}
	return m
}
