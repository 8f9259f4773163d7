package roundup

import (
	"errors"
	"fmt"
	"os"

	"github.com/roundup-project/roundup/pkg/utils"
	"gopkg.in/yaml.v3"
)

// EnvConfig is the environment variable holding the path to the config file.
const EnvConfig = "ROUNDUP_CONFIG"

// DefaultConfigName is searched from the working directory upward
// when neither a path nor $ROUNDUP_CONFIG is given.
const DefaultConfigName = "roundup.yaml"

var ErrMisconfigured = errors.New("misconfiguration")

// load roundup config from a file.
//
// args:
//   - filepath: filepath refers a config file.
//     If empty, $ROUNDUP_CONFIG is used.
//     If it is also empty, the nearest roundup.yaml in the working directory or its ancestors is used.
//
// returns *Config, error:
//
//	When loading success, returns `(*Config, nil)`.
//	Otherwise, returns `(nil, error)`.
func LoadConfig(filepath string) (*Config, error) {
	if filepath == "" {
		filepath = os.Getenv(EnvConfig)
	}
	if filepath == "" {
		found, err := DiscoverConfig(".")
		if err != nil {
			return nil, fmt.Errorf(
				"%w: no config file is given. set --config or $%s, or put %s: %w",
				ErrMisconfigured, EnvConfig, DefaultConfigName, err,
			)
		}
		filepath = found
	}
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

// DiscoverConfig returns the path of the nearest roundup.yaml in dir or its ancestors.
func DiscoverConfig(dir string) (string, error) {
	return utils.SearchUpward(dir, DefaultConfigName)
}

// Unmarshal parses and seals config.
//
// Misconfigurations are returned as ErrMisconfigured, not panics.
func Unmarshal(conf []byte) (out *Config, err error) {
	var _out *ConfigMarshall
	if err := yaml.Unmarshal(conf, &_out); err != nil {
		return nil, err
	}
	if _out == nil {
		return nil, fmt.Errorf("%w: config is empty", ErrMisconfigured)
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: %v", ErrMisconfigured, r)
		}
	}()
	out = TrySeal(_out)
	return out, nil
}
