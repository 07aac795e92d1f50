package config

import (
	"errors"
	"fmt"
)

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if len(cfg.Instruments) == 0 {
		return errors.New("instruments config is required")
	}
	seen := make(map[string]bool, len(cfg.Instruments))
	for _, ic := range cfg.Instruments {
		if ic.Symbol == "" {
			return errors.New("instrument symbol is required")
		}
		if seen[ic.Symbol] {
			return fmt.Errorf("instrument %s defined twice", ic.Symbol)
		}
		seen[ic.Symbol] = true
		if ic.MaxPrice <= ic.MinPrice {
			return fmt.Errorf("instrument %s maxPrice must be > minPrice", ic.Symbol)
		}
		if ic.QtyMult <= 0 || ic.PriceMult <= 0 {
			return fmt.Errorf("instrument %s multipliers must be > 0", ic.Symbol)
		}
		if ic.PriceIncr <= 0 || ic.QtyIncr <= 0 {
			return fmt.Errorf("instrument %s increments must be > 0", ic.Symbol)
		}
		if ic.Expiration.IsZero() {
			return fmt.Errorf("instrument %s expiration is required", ic.Symbol)
		}
	}
	traders := make(map[string]bool, len(cfg.Traders))
	for _, tc := range cfg.Traders {
		if tc.Name == "" {
			return errors.New("trader name is required")
		}
		if traders[tc.Name] {
			return fmt.Errorf("trader %s defined twice", tc.Name)
		}
		traders[tc.Name] = true
		if tc.CreditLimit < 0 {
			return fmt.Errorf("trader %s creditLimit must be >= 0", tc.Name)
		}
	}
	if cfg.Server.RateLimit < 0 || cfg.Server.RateBurst < 0 {
		return errors.New("server rate limit settings must be >= 0")
	}
	return nil
}
