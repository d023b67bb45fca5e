package core

import "strings"

// Environment selects logging format and defaults. It is read from APP_ENV.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

func (e Environment) String() string {
	return string(e)
}

func (e Environment) IsProduction() bool {
	return e == Production
}

// ParseEnvironment accepts any case and the short forms "dev", "prod" and "test".
// Anything else is Development.
func ParseEnvironment(v string) Environment {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "production", "prod":
		return Production
	case "staging":
		return Staging
	case "testing", "test":
		return Testing
	default:
		return Development
	}
}

// Decode lets envconfig fill an Environment field through ParseEnvironment.
func (e *Environment) Decode(value string) error {
	*e = ParseEnvironment(value)
	return nil
}
