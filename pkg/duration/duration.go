// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package duration parses the human durations used in step parameters.
package duration

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var ErrInvalidFormat = errors.New("invalid duration format")

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// longForm matches a leading week or day count followed by an optional Go
// duration, e.g. "1w", "2d", "1d12h30m".
var longForm = regexp.MustCompile(`^(?:(\d+)w)?(?:(\d+)d)?(.*)$`)

// Parse accepts every time.ParseDuration string plus leading "w" and "d"
// components. Negative and empty values are rejected.
func Parse(s string) (time.Duration, error) {
	if s == "" {
		return 0, ErrInvalidFormat
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("%w: %s is negative", ErrInvalidFormat, s)
		}
		return d, nil
	}

	m := longForm.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "") {
		return 0, fmt.Errorf("%w: %s", ErrInvalidFormat, s)
	}
	var total time.Duration
	for i, unit := range []time.Duration{week, day} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidFormat, s)
		}
		total += time.Duration(n) * unit
	}
	if rest := m[3]; rest != "" {
		d, err := time.ParseDuration(rest)
		if err != nil || d < 0 {
			return 0, fmt.Errorf("%w: %s", ErrInvalidFormat, s)
		}
		total += d
	}
	return total, nil
}
