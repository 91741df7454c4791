package ddc

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"dimctl/internal/errors"
	"dimctl/internal/logger"
)

const (
	brightnessVCP  = "10"
	ddcCallTimeout = 5 * time.Second
)

// ddcutilTransport drives DDC/CI-capable monitors through the ddcutil
// command-line tool.
type ddcutilTransport struct {
	mu      sync.Mutex
	numbers map[string]int // display ID -> ddcutil display number
}

// NewDDCUtilTransport returns a Transport backed by ddcutil.
func NewDDCUtilTransport() Transport {
	return &ddcutilTransport{numbers: make(map[string]int)}
}

func (t *ddcutilTransport) Detect(ctx context.Context) ([]Display, error) {
	errFactory := errors.New()

	out, err := t.run(ctx, "detect", "--terse")
	if err != nil {
		return nil, errFactory.Wrap(ErrDetectFailed, err)
	}

	displays := parseDetect(out)

	t.mu.Lock()
	t.numbers = make(map[string]int, len(displays))
	for number, d := range displays {
		t.numbers[d.ID] = number + 1
	}
	t.mu.Unlock()

	return displays, nil
}

func (t *ddcutilTransport) GetBrightness(ctx context.Context, id string) (int, error) {
	errFactory := errors.New()

	number, ok := t.number(id)
	if !ok {
		return 0, errFactory.WithData(ErrUnknownDisplay, id)
	}

	out, err := t.run(ctx, "--display", strconv.Itoa(number), "getvcp", brightnessVCP, "--terse")
	if err != nil {
		return 0, errFactory.Wrap(ErrTransient, err)
	}

	current, maximum, err := parseVCP(out)
	if err != nil {
		return 0, err
	}
	if maximum <= 0 {
		maximum = 100
	}

	return current * 100 / maximum, nil
}

func (t *ddcutilTransport) SetBrightness(ctx context.Context, id string, percent int) error {
	errFactory := errors.New()

	number, ok := t.number(id)
	if !ok {
		return errFactory.WithData(ErrUnknownDisplay, id)
	}

	if _, err := t.run(ctx, "--display", strconv.Itoa(number), "setvcp", brightnessVCP, strconv.Itoa(percent)); err != nil {
		return errFactory.Wrap(ErrTransient, err)
	}

	return nil
}

func (t *ddcutilTransport) number(id string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.numbers[id]

	return n, ok
}

func (t *ddcutilTransport) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ddcCallTimeout)
	defer cancel()

	logger.Debug().Strs("args", args).Msg("ddcutil")

	out, err := exec.CommandContext(ctx, "ddcutil", args...).Output()
	if err != nil {
		return "", fmt.Errorf("ddcutil %s: %w", strings.Join(args, " "), err)
	}

	return string(out), nil
}

// parseDetect parses `ddcutil detect --terse` output:
//
//	Display 1
//	   I2C bus:  /dev/i2c-4
//	   Monitor:  SAM:S24F350:H4ZN500119
func parseDetect(out string) []Display {
	var displays []Display
	var inDisplay bool
	var name string

	flush := func() {
		if !inDisplay {
			return
		}
		id := name
		if id == "" {
			id = fmt.Sprintf("display-%d", len(displays)+1)
			name = id
		}
		displays = append(displays, Display{ID: id, Name: name, Capability: CapabilityDDC})
		inDisplay = false
		name = ""
	}

	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Display "):
			flush()
			inDisplay = true
		case strings.HasPrefix(trimmed, "Invalid display"):
			flush()
		case inDisplay && strings.HasPrefix(trimmed, "Monitor:"):
			name = strings.TrimSpace(strings.TrimPrefix(trimmed, "Monitor:"))
		}
	}
	flush()

	return displays
}

// parseVCP parses `getvcp 10 --terse` output: "VCP 10 C 50 100".
func parseVCP(out string) (current, maximum int, err error) {
	errFactory := errors.New()

	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) < 5 || fields[0] != "VCP" {
		return 0, 0, errFactory.WithData(ErrParseFailed, strings.TrimSpace(out))
	}

	current, err = strconv.Atoi(fields[3])
	if err != nil {
		return 0, 0, errFactory.Wrap(ErrParseFailed, err)
	}

	maximum, err = strconv.Atoi(fields[4])
	if err != nil {
		return 0, 0, errFactory.Wrap(ErrParseFailed, err)
	}

	return current, maximum, nil
}
