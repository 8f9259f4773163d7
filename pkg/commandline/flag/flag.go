package flag

import (
	"fmt"
	"time"
)

// Argslice is a repeatable string flag.
type Argslice []string

func (s *Argslice) String() string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("%v", *s)
}

func (s *Argslice) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// OptionalDuration is a duration flag which tells whether it is given.
type OptionalDuration struct {
	d     time.Duration
	isSet bool
}

func (t *OptionalDuration) String() string {
	if t == nil || !t.isSet {
		return ""
	}
	return t.d.String()
}

func (t *OptionalDuration) Set(v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	t.d = d
	t.isSet = true
	return nil
}

// Duration returns the value, or nil if it is not set.
func (t *OptionalDuration) Duration() *time.Duration {
	if t == nil || !t.isSet {
		return nil
	}
	return &t.d
}

// Or returns the value, or fallback if it is not set.
func (t *OptionalDuration) Or(fallback time.Duration) time.Duration {
	if d := t.Duration(); d != nil {
		return *d
	}
	return fallback
}
