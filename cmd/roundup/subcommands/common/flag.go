package common

import (
	"os"

	rconf "github.com/roundup-project/roundup/pkg/configs/roundup"
)

type CommonFlags struct {
	Config string `flag:"config" metavar:"FILE" help:"path to roundup config file. default: $ROUNDUP_CONFIG, or the nearest roundup.yaml upward"`
}

// Flags returns the default of common flags, from the environment.
func Flags() CommonFlags {
	return CommonFlags{
		Config: os.Getenv(rconf.EnvConfig),
	}
}
