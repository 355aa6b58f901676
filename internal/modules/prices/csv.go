package prices

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// ParseCSV reads "date,close" rows. A header row is skipped when its
// second column is not a number.
func ParseCSV(r io.Reader) ([]domain.PricePoint, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var points []domain.PricePoint
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("line %d: expected date,close", line)
		}

		closeValue, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: invalid close %q", line, record[1])
		}
		date, err := domain.ParseDate(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date %q", line, record[0])
		}
		points = append(points, domain.PricePoint{Date: date, Close: closeValue})
	}
	return points, nil
}
