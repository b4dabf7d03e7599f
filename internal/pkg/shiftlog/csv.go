package shiftlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

//Columns is the fixed header of a persisted shift log
var Columns = []string{"date", "start_hour", "end_hour", "earnings", "weather", "traffic"}

//ReadCSV decodes a shift log table. An empty input is an empty log.
func ReadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(Columns)

	records := []Record{}

	header, err := reader.Read()
	if err == io.EOF {
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read shift log header: %w", err)
	}

	for idx, column := range Columns {
		name := header[idx]
		if idx == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if name != column {
			return nil, fmt.Errorf("unexpected shift log column %d: %q != %q", idx, name, column)
		}
	}

	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unable to read shift log row %d: %w", line, err)
		}

		earnings, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: earnings %q is not a number", line, row[3])
		}

		traffic, err := ParseTraffic(row[5])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}

		records = append(records, Record{
			Date:      row[0],
			StartHour: row[1],
			EndHour:   row[2],
			Earnings:  earnings,
			Weather:   row[4],
			Traffic:   traffic,
		})
	}

	return records, nil
}

//WriteCSV encodes records as a shift log table, header first
func WriteCSV(w io.Writer, records []Record) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(Columns); err != nil {
		return err
	}

	for _, r := range records {
		row := []string{
			r.Date,
			r.StartHour,
			r.EndHour,
			strconv.FormatFloat(r.Earnings, 'f', -1, 64),
			r.Weather,
			r.Traffic.String(),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
