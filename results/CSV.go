package results

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// CSV is a Writer which appends rows to a CSV file. The first row
// written determines the header of the file, and every later row must
// have the same columns in the same order.
//
// The file is opened and closed on every write so that the rows
// written so far are always on disk.
type CSV struct {
	path        string
	header      []string
	rowsWritten int
}

// NewCSV returns a new CSV Writer which writes to the file at path.
// Any existing file is overwritten on the first write.
func NewCSV(path string) (*CSV, error) {
	if path == "" {
		return nil, fmt.Errorf("newCSV: empty path")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("newCSV: %v", err)
		}
	}

	return &CSV{path: path}, nil
}

// Write appends a row to the file
func (c *CSV) Write(r Row) error {
	flag := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if c.rowsWritten == 0 {
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		c.header = r.Names()
	} else if err := c.checkHeader(r); err != nil {
		return fmt.Errorf("write: %v", err)
	}

	file, err := os.OpenFile(c.path, flag, 0o644)
	if err != nil {
		return fmt.Errorf("write: %v", err)
	}

	err = c.writeRecords(file, r)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write: %v", err)
	}

	c.rowsWritten++
	return nil
}

// writeRecords writes a row to file, preceded by the header if no rows
// have been written yet
func (c *CSV) writeRecords(file *os.File, r Row) error {
	w := csv.NewWriter(file)
	if c.rowsWritten == 0 {
		if err := w.Write(c.header); err != nil {
			return err
		}
	}
	if err := w.Write(formatRow(r)); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Close does nothing, since the file is closed after every write
func (c *CSV) Close() error {
	return nil
}

// State returns the number of rows written
func (c *CSV) State() State {
	return State{RowsWritten: c.rowsWritten}
}

// SetState truncates the file to the header and the first
// s.RowsWritten rows
func (c *CSV) SetState(s State) error {
	if s.RowsWritten < 0 {
		return fmt.Errorf("setState: negative rows written %v", s.RowsWritten)
	}
	if s.RowsWritten == 0 {
		c.rowsWritten = 0
		c.header = nil
		return nil
	}

	file, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("setState: %v", err)
	}
	records, err := csv.NewReader(bufio.NewReader(file)).ReadAll()
	file.Close()
	if err != nil {
		return fmt.Errorf("setState: %v", err)
	}
	if len(records) < s.RowsWritten+1 {
		return fmt.Errorf("setState: file has %v rows, want at least %v",
			len(records)-1, s.RowsWritten)
	}

	records = records[:s.RowsWritten+1]
	tmp := c.path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("setState: %v", err)
	}
	w := csv.NewWriter(out)
	if err := w.WriteAll(records); err != nil {
		out.Close()
		return fmt.Errorf("setState: %v", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("setState: %v", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("setState: %v", err)
	}

	c.header = records[0]
	c.rowsWritten = s.RowsWritten
	return nil
}

func (c *CSV) checkHeader(r Row) error {
	names := r.Names()
	if len(names) != len(c.header) {
		return fmt.Errorf("row has %v columns, header has %v", len(names),
			len(c.header))
	}
	for i := range names {
		if names[i] != c.header[i] {
			return fmt.Errorf("column %v is %q, header has %q", i, names[i],
				c.header[i])
		}
	}
	return nil
}

func formatRow(r Row) []string {
	record := make([]string, len(r))
	for i, c := range r {
		record[i] = strconv.FormatFloat(c.Value, 'g', -1, 64)
	}
	return record
}
