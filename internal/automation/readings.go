package automation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"hvacautomation/internal/ha"
)

// DefaultCO2 is the atmospheric level assumed for unreadable CO2 sensors
const DefaultCO2 = 400

// RequireState returns the state of entityID; a missing entity yields ErrEntityNotFound
func RequireState(reader StateReader, entityID string) (*ha.State, error) {
	state, err := reader.GetState(entityID)
	if err != nil {
		if errors.Is(err, ErrEntityNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read %s: %w", entityID, err)
	}
	if state == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}
	return state, nil
}

// ParseCO2 reads a ppm value, truncating decimals. Anything unparsable counts as DefaultCO2.
func ParseCO2(value string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return DefaultCO2
	}
	return int(f)
}

// ParseFloat reads the numeric state of entityID
func ParseFloat(entityID, value string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s has state %q", ErrValueParse, entityID, value)
	}
	return f, nil
}

// ReadCO2 reads and parses a CO2 sensor
func ReadCO2(reader StateReader, entityID string) (int, error) {
	state, err := RequireState(reader, entityID)
	if err != nil {
		return 0, err
	}
	return ParseCO2(state.State), nil
}

// ReadTemperature reads a numeric sensor; unparsable states are an error
func ReadTemperature(reader StateReader, entityID string) (float64, error) {
	state, err := RequireState(reader, entityID)
	if err != nil {
		return 0, err
	}
	return ParseFloat(entityID, state.State)
}
