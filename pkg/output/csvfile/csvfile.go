// Package csvfile appends each poll's batch as one row of a daily CSV file,
// named YYMMDD_<sensor>_<location>.csv under the output folder. The header
// row is written once per file.
package csvfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/garygsw/sensor-reader/pkg/config"
	"github.com/garygsw/sensor-reader/pkg/output"
	"github.com/garygsw/sensor-reader/pkg/sensor"
)

const (
	dateStampLayout = "060102"
	timeStampLayout = "15:04:05"
)

type CSVOutput struct {
	folder    string
	name      string
	location  string
	delimiter string

	file        *os.File
	currentDate string
	header      []string
	columns     map[string]bool
}

// NewCSV creates the sink. channels is the full configured channel list in
// column order; a channel absent on one tick keeps its (empty) column and is
// written again once it recovers. When channels is empty the header is
// inferred from the first published batch.
func NewCSV(cfg config.CSVConfig, channels []string) (output.Output, error) {
	folder := cfg.Folder
	if folder == "" {
		folder = "Outputs"
	}
	name := cfg.SensorName
	if name == "" {
		name = "sensor"
	}
	location := cfg.SensorLocation
	if location == "" {
		location = "location"
	}
	delimiter := cfg.Delimiter
	if delimiter == "" {
		delimiter = ","
	}
	if len(delimiter) != 1 {
		return nil, fmt.Errorf("invalid delimiter %q", delimiter)
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("create output folder: %w", err)
	}
	c := &CSVOutput{folder: folder, name: name, location: location, delimiter: delimiter}
	if len(channels) > 0 {
		c.setHeader(channels)
	}
	return c, nil
}

func (c *CSVOutput) setHeader(channels []string) {
	c.header = append([]string(nil), channels...)
	c.columns = make(map[string]bool, len(channels))
	for _, ch := range channels {
		c.columns[ch] = true
	}
}

func (c *CSVOutput) Publish(samples []sensor.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	ts := samples[0].Timestamp
	date := ts.Format(dateStampLayout)
	if err := c.rotate(date); err != nil {
		return err
	}
	if c.header == nil {
		chans := make([]string, 0, len(samples))
		for _, s := range samples {
			chans = append(chans, s.Channel)
		}
		c.setHeader(chans)
		if err := c.writeHeaderIfNew(); err != nil {
			return err
		}
	}

	byChannel := make(map[string]sensor.Sample, len(samples))
	var unknown []string
	for _, s := range samples {
		if !c.columns[s.Channel] {
			unknown = append(unknown, s.Channel)
			continue
		}
		byChannel[s.Channel] = s
	}
	row := []string{date, ts.Format(timeStampLayout)}
	for _, ch := range c.header {
		if s, ok := byChannel[ch]; ok {
			row = append(row, strconv.FormatFloat(s.Value, 'f', -1, 64))
		} else {
			// channel omitted this tick (read or calibration failure)
			row = append(row, "")
		}
	}
	if _, err := c.file.WriteString(strings.Join(row, c.delimiter) + "\n"); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	if len(unknown) > 0 {
		return fmt.Errorf("samples dropped for channels outside the header: %s", strings.Join(unknown, ","))
	}
	return nil
}

// rotate switches to the file for the given date, closing the previous day's.
func (c *CSVOutput) rotate(date string) error {
	if c.file != nil && date == c.currentDate {
		return nil
	}
	if c.file != nil {
		_ = c.file.Close()
		c.file = nil
	}
	filename := filepath.Join(c.folder, fmt.Sprintf("%s_%s_%s.csv", date, c.name, c.location))
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	c.file = f
	c.currentDate = date
	if c.header != nil {
		return c.writeHeaderIfNew()
	}
	return nil
}

// writeHeaderIfNew writes the header row when the file is still empty, so a
// restart on the same day does not duplicate it.
func (c *CSVOutput) writeHeaderIfNew() error {
	info, err := c.file.Stat()
	if err != nil {
		return fmt.Errorf("stat output file: %w", err)
	}
	if info.Size() > 0 {
		return nil
	}
	cols := append([]string{"date_stamp", "time_stamp"}, c.header...)
	if _, err := c.file.WriteString(strings.Join(cols, c.delimiter) + "\n"); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

func (c *CSVOutput) Close() error {
	if c.file != nil {
		err := c.file.Close()
		c.file = nil
		return err
	}
	return nil
}
