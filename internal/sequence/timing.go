// Package sequence decides what touch a lead is owed and when. It never
// sends anything itself; the orchestrator routes its decisions through the
// state machine and the send queue.
package sequence

import (
	"fmt"
	"os"
	"sort"
	"time"

	"outreach_backend/internal/leads/domain"

	"gopkg.in/yaml.v3"
)

// Timing maps a touch number to the wait after the previous touch. Touch 1
// is anchored at lead creation.
type Timing map[int]time.Duration

// DefaultTiming is the standard five-touch cadence.
func DefaultTiming() Timing {
	return Timing{
		1: 0,
		2: 24 * time.Hour,
		3: 96 * time.Hour,
		4: 168 * time.Hour,
		5: 720 * time.Hour,
	}
}

type timingFile struct {
	Touches map[int]int `yaml:"touches"` // touch number -> wait in hours
}

// LoadTiming reads a timing table from a YAML file. An empty path returns
// the default cadence.
func LoadTiming(path string) (Timing, error) {
	if path == "" {
		return DefaultTiming(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read timing table: %w", err)
	}

	var file timingFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse timing table: %w", err)
	}
	if len(file.Touches) == 0 {
		return nil, fmt.Errorf("timing table %s has no touches", path)
	}

	timing := make(Timing, len(file.Touches))
	numbers := make([]int, 0, len(file.Touches))
	for number, hours := range file.Touches {
		if number < 1 || number > domain.MaxTouches {
			return nil, fmt.Errorf("timing table: touch number %d out of range", number)
		}
		if hours < 0 {
			return nil, fmt.Errorf("timing table: touch %d has negative wait", number)
		}
		timing[number] = time.Duration(hours) * time.Hour
		numbers = append(numbers, number)
	}

	sort.Ints(numbers)
	for i, number := range numbers {
		if number != i+1 {
			return nil, fmt.Errorf("timing table: touch numbers must be contiguous from 1, got %v", numbers)
		}
	}

	return timing, nil
}

// MaxTouch returns the highest touch number in the table.
func (t Timing) MaxTouch() int {
	max := 0
	for number := range t {
		if number > max {
			max = number
		}
	}
	return max
}
