package tasks

import (
	"fmt"
	"strconv"
	"strings"
)

// parseArgs splits "key=value" job arguments into a map. A bare token
// with no value reads as "true" so flags can be passed alone.
func parseArgs(args []string) map[string]string {
	out := make(map[string]string, len(args))
	for _, a := range args {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		k, v, found := strings.Cut(a, "=")
		if !found {
			v = "true"
		}
		out[k] = v
	}
	return out
}

func argString(args map[string]string, key, def string) string {
	if v, ok := args[key]; ok && v != "" {
		return v
	}
	return def
}

func argFloat(args map[string]string, key string, def float64) (float64, error) {
	v, ok := args[key]
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s value %q", key, v)
	}
	return f, nil
}

func argInt(args map[string]string, key string, def int) (int, error) {
	v, ok := args[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("bad %s value %q", key, v)
	}
	return n, nil
}

func argBool(args map[string]string, key string, def bool) (bool, error) {
	v, ok := args[key]
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("bad %s value %q", key, v)
	}
	return b, nil
}

// splitList splits a comma-separated argument into trimmed non-empty
// entries.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseLevels reads a "lo,hi" percentile pair for mask contrast
// stretching.
func parseLevels(s string) ([2]float64, error) {
	lo, hi, found := strings.Cut(s, ",")
	if !found {
		return [2]float64{}, fmt.Errorf("bad levels %q: want lo,hi", s)
	}
	l, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return [2]float64{}, fmt.Errorf("bad levels %q: %v", s, err)
	}
	h, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return [2]float64{}, fmt.Errorf("bad levels %q: %v", s, err)
	}
	if l < 0 || h > 100 || l >= h {
		return [2]float64{}, fmt.Errorf("bad levels %q: want 0 <= lo < hi <= 100", s)
	}
	return [2]float64{l, h}, nil
}
