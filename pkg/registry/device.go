package registry

import (
	"fmt"
)

// EntityConfig is one tracked entity of a calendar as stored in the devices
// file. IgnoreAvailability is a pointer so an absent key can default to true.
type EntityConfig struct {
	Name               string `yaml:"name"`
	DeviceId           string `yaml:"device_id"`
	Track              bool   `yaml:"track"`
	Offset             string `yaml:"offset,omitempty"`
	Filter             string `yaml:"filter,omitempty"`
	IgnoreAvailability *bool  `yaml:"ignore_availability,omitempty"`
	MaxResults         int    `yaml:"max_results,omitempty"`
}

func (e EntityConfig) IgnoresAvailability() bool {
	if e.IgnoreAvailability == nil {
		return true
	}
	return *e.IgnoreAvailability
}

// Device is a remote calendar with the entities built from it. CalId joins
// it with the provider's calendar.
type Device struct {
	CalId    string         `yaml:"cal_id"`
	Entities []EntityConfig `yaml:"entities"`
}

// TrackedEntities returns the entities that should be polled.
func (d Device) TrackedEntities() []EntityConfig {
	var tracked []EntityConfig
	for _, e := range d.Entities {
		if e.Track {
			tracked = append(tracked, e)
		}
	}
	return tracked
}

func (d Device) Validate() error {
	if d.CalId == "" {
		return fmt.Errorf("cal_id is required")
	}
	for i, e := range d.Entities {
		if e.Name == "" {
			return fmt.Errorf("entities[%d]: name is required", i)
		}
		if e.DeviceId == "" {
			return fmt.Errorf("entities[%d]: device_id is required", i)
		}
		if e.MaxResults < 0 {
			return fmt.Errorf("entities[%d]: max_results must be positive", i)
		}
	}
	return nil
}

// ConfigValidationError describes a devices file entry that was skipped.
type ConfigValidationError struct {
	Index  int
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid calendar entry #%d: %s", e.Index, e.Reason)
}
