package config

import "fmt"

// Tier identifies the priority level of an assignment. Higher tiers are
// resolved and committed first and win ties against lower tiers.
type Tier int

const (
	// TierUnknown guards against zero-valued misconfiguration.
	TierUnknown Tier = iota
	// TierImplicit holds assignments synthesised by the engine itself.
	TierImplicit
	// TierConfigDefaults holds values produced by default config scopes.
	TierConfigDefaults
	// TierInternal holds assignments made by internal machinery.
	TierInternal
	// TierNamedConfig holds values contributed by named config selections.
	TierNamedConfig
	// TierRunArgs holds per-run argument dictionaries.
	TierRunArgs
	// TierCommandLine holds command-line overrides.
	TierCommandLine
	// TierForced holds operator overrides that beat even the command line.
	TierForced
)

// tierOrder lists every schedulable tier from strongest to weakest; the
// scheduler walks it front to back.
var tierOrder = []Tier{
	TierForced,
	TierCommandLine,
	TierRunArgs,
	TierNamedConfig,
	TierInternal,
	TierConfigDefaults,
	TierImplicit,
}

func (t Tier) String() string {
	switch t {
	case TierImplicit:
		return "implicit"
	case TierConfigDefaults:
		return "config_defaults"
	case TierInternal:
		return "internal"
	case TierNamedConfig:
		return "named_config"
	case TierRunArgs:
		return "run_arguments"
	case TierCommandLine:
		return "commandline"
	case TierForced:
		return "forced"
	default:
		return "unknown"
	}
}

// ParseTier converts a string representation into the corresponding Tier.
// Returns TierUnknown for unrecognised values.
func ParseTier(value string) Tier {
	switch value {
	case "implicit":
		return TierImplicit
	case "config_defaults":
		return TierConfigDefaults
	case "internal":
		return TierInternal
	case "named_config":
		return TierNamedConfig
	case "run_arguments":
		return TierRunArgs
	case "commandline":
		return TierCommandLine
	case "forced":
		return TierForced
	default:
		return TierUnknown
	}
}

// Valid reports whether the tier is one of the schedulable levels.
func (t Tier) Valid() bool {
	return t > TierUnknown && t <= TierForced
}

func (t Tier) validate() error {
	if !t.Valid() {
		return fmt.Errorf("config: invalid tier %d", int(t))
	}
	return nil
}
