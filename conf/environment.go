package conf

import "fmt"

// EnvironmentEnum deployment environment
type EnvironmentEnum string

const (
	LocalEnvironmentEnum   EnvironmentEnum = "loc"
	TestnetEnvironmentEnum EnvironmentEnum = "testnet"
	MainnetEnvironmentEnum EnvironmentEnum = "mainnet"
	ExampleEnvironmentEnum EnvironmentEnum = "example"
)

// SystemEnvironmentEnum environment selected at startup
var SystemEnvironmentEnum = LocalEnvironmentEnum

// ConfigFile explicit config path; overrides the environment default
var ConfigFile string

// ParseEnvironment maps a -env flag value to its enum.
func ParseEnvironment(s string) (EnvironmentEnum, error) {
	switch e := EnvironmentEnum(s); e {
	case LocalEnvironmentEnum, TestnetEnvironmentEnum, MainnetEnvironmentEnum, ExampleEnvironmentEnum:
		return e, nil
	}
	return "", fmt.Errorf("unknown environment %q (loc/testnet/mainnet/example)", s)
}

// GetYaml returns the config file for the current environment.
func GetYaml() string {
	if ConfigFile != "" {
		return ConfigFile
	}
	return fmt.Sprintf("./conf/conf_%s.yaml", SystemEnvironmentEnum)
}
