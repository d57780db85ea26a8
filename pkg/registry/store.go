package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const DevicesFile = "outlook_calendars.yaml"

// DeviceStore reads and appends to the YAML devices file. The file is a
// sequence of devices and is never rewritten, new devices are appended.
type DeviceStore struct {
	path string
	mu   sync.Mutex
}

func NewDeviceStore(path string) *DeviceStore {
	return &DeviceStore{path: path}
}

func (s *DeviceStore) Path() string {
	return s.path
}

// Load returns the valid devices of the file. Entries that cannot be decoded
// or validated are skipped with a warning. When a cal_id appears more than
// once, the last entry wins.
func (s *DeviceStore) Load() ([]Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debugf("Devices file %s does not exist yet", s.path)
			return nil, nil
		}
		return nil, fmt.Errorf("unable to read devices file: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		err := fmt.Errorf("unable to parse devices file %s: %w", s.path, err)
		log.Error(err)
		return nil, err
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, nil
	}
	seq := root.Content[0]
	if seq.Kind != yaml.SequenceNode {
		log.Warnf("Devices file %s does not contain a list, ignoring it", s.path)
		return nil, nil
	}

	var devices []Device
	positions := make(map[string]int)
	for i, item := range seq.Content {
		var device Device
		if err := item.Decode(&device); err != nil {
			log.Warn(&ConfigValidationError{Index: i, Reason: err.Error()})
			continue
		}
		if err := device.Validate(); err != nil {
			log.Warn(&ConfigValidationError{Index: i, Reason: err.Error()})
			continue
		}
		if pos, ok := positions[device.CalId]; ok {
			devices[pos] = device
			continue
		}
		positions[device.CalId] = len(devices)
		devices = append(devices, device)
	}
	return devices, nil
}

func (s *DeviceStore) Append(device Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal([]Device{device})
	if err != nil {
		return fmt.Errorf("unable to marshal device: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("unable to open devices file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append([]byte("\n"), data...)); err != nil {
		return fmt.Errorf("unable to append device: %w", err)
	}
	return nil
}
