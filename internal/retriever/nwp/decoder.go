package nwp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
)

// EccodesDecoder decodes grib fields by shelling out to grib_get_data from
// the eccodes toolkit, which prints one "lat lon value" row per grid cell.
type EccodesDecoder struct {
	// Binary overrides the grib_get_data executable path.
	Binary string
}

func (d EccodesDecoder) binary() string {
	if d.Binary != "" {
		return d.Binary
	}
	return "grib_get_data"
}

// Decode implements Decoder.
func (d EccodesDecoder) Decode(ctx context.Context, path string, shortName string) (Field, error) {
	if _, err := os.Stat(path); err != nil {
		return Field{}, err
	}
	cmd := exec.CommandContext(ctx, d.binary(), "-w", "shortName="+shortName, path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Field{}, fmt.Errorf("grib_get_data %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return parseGridRows(&stdout)
}

type cell struct {
	lat, lon, value float64
}

// parseGridRows turns "lat lon value" rows into a regular grid. The header
// line and blank lines are skipped.
func parseGridRows(buf *bytes.Buffer) (Field, error) {
	var cells []cell
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 3 {
			continue
		}
		lat, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			continue // header row
		}
		lon, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return Field{}, fmt.Errorf("malformed longitude %q", fields[1])
		}
		value, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return Field{}, fmt.Errorf("malformed value %q", fields[2])
		}
		cells = append(cells, cell{lat: lat, lon: lon, value: value})
	}
	if err := scanner.Err(); err != nil {
		return Field{}, err
	}
	if len(cells) == 0 {
		return Field{}, fmt.Errorf("no grid rows decoded")
	}

	xs := uniqueSorted(cells, func(c cell) float64 { return c.lon })
	ys := uniqueSorted(cells, func(c cell) float64 { return c.lat })
	if len(cells) != len(xs)*len(ys) {
		return Field{}, fmt.Errorf("irregular grid: %d cells for %dx%d axes", len(cells), len(xs), len(ys))
	}

	xIndex := indexOf(xs)
	yIndex := indexOf(ys)
	values := make([]float64, len(cells))
	for _, c := range cells {
		values[yIndex[c.lat]*len(xs)+xIndex[c.lon]] = c.value
	}
	return Field{XS: xs, YS: ys, Values: values}, nil
}

func uniqueSorted(cells []cell, axis func(cell) float64) []float64 {
	seen := make(map[float64]struct{}, len(cells))
	var out []float64
	for _, c := range cells {
		v := axis(c)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

func indexOf(axis []float64) map[float64]int {
	m := make(map[float64]int, len(axis))
	for i, v := range axis {
		m[v] = i
	}
	return m
}
