package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cwbudde/bayestune/internal/space"
)

// parseParams parses name:lower:upper:step specs in flag order.
func parseParams(specs []string) (space.Space, error) {
	s := make(space.Space, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("parameter %q: expected name:lower:upper:step", spec)
		}
		p := space.ParameterSpec{Name: parts[0]}
		var err error
		for i, dst := range []*float64{&p.Lower, &p.Upper, &p.Step} {
			if *dst, err = strconv.ParseFloat(parts[i+1], 64); err != nil {
				return nil, fmt.Errorf("parameter %q: %w", spec, err)
			}
		}
		s = append(s, p)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
