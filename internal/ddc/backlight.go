package ddc

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dimctl/internal/errors"
)

const backlightRoot = "/sys/class/backlight"

// backlightTransport drives laptop panels through the sysfs backlight
// interface. These have no DDC/CI but expose the same percent contract.
type backlightTransport struct {
	root string
}

// NewBacklightTransport returns a Transport backed by /sys/class/backlight.
func NewBacklightTransport() Transport {
	return &backlightTransport{root: backlightRoot}
}

func (t *backlightTransport) Detect(_ context.Context) ([]Display, error) {
	entries, err := os.ReadDir(t.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New().Wrap(ErrDetectFailed, err)
	}

	var displays []Display
	for _, entry := range entries {
		displays = append(displays, Display{
			ID:         "backlight:" + entry.Name(),
			Name:       entry.Name(),
			Capability: CapabilityBacklight,
		})
	}

	return displays, nil
}

func (t *backlightTransport) GetBrightness(_ context.Context, id string) (int, error) {
	dir, err := t.dir(id)
	if err != nil {
		return 0, err
	}

	current, err := readIntFile(filepath.Join(dir, "brightness"))
	if err != nil {
		return 0, errors.New().Wrap(ErrTransient, err)
	}

	maximum, err := readIntFile(filepath.Join(dir, "max_brightness"))
	if err != nil || maximum <= 0 {
		maximum = 100
	}

	return current * 100 / maximum, nil
}

func (t *backlightTransport) SetBrightness(_ context.Context, id string, percent int) error {
	dir, err := t.dir(id)
	if err != nil {
		return err
	}

	maximum, err := readIntFile(filepath.Join(dir, "max_brightness"))
	if err != nil || maximum <= 0 {
		maximum = 100
	}

	raw := percent * maximum / 100
	if err := os.WriteFile(filepath.Join(dir, "brightness"), []byte(strconv.Itoa(raw)), 0o644); err != nil {
		return errors.New().Wrap(ErrTransient, err)
	}

	return nil
}

func (t *backlightTransport) dir(id string) (string, error) {
	name, ok := strings.CutPrefix(id, "backlight:")
	if !ok {
		return "", errors.New().WithData(ErrUnknownDisplay, id)
	}

	return filepath.Join(t.root, name), nil
}

func readIntFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	return strconv.Atoi(strings.TrimSpace(string(data)))
}
