package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load parses environment variables into the provided struct using `env`
// and `envDefault` tags. time.Duration fields accept Go duration strings
// such as "10s" or "1h".
//
//	type Config struct {
//	    Port        int           `env:"HTTP_PORT" envDefault:"8080"`
//	    LookupLimit time.Duration `env:"LOOKUP_TIMEOUT" envDefault:"5s"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
