package extract

import "time"

// Chunk is a begin/end date window in the YYYYMMDD format the AQS API
// expects. Windows never span a calendar-year boundary.
type Chunk struct {
	BDate string
	EDate string
}

const dateLayout = "20060102"

// YearChunks splits [start, end] into calendar-year chunks. The first
// chunk begins at start, the last ends at end, and every chunk in between
// covers a full year. Returns nil when end precedes start.
func YearChunks(start, end time.Time) []Chunk {
	if end.Before(start) {
		return nil
	}

	var chunks []Chunk
	for year := start.Year(); year <= end.Year(); year++ {
		bdate := time.Date(year, time.January, 1, 0, 0, 0, 0, start.Location())
		if year == start.Year() {
			bdate = start
		}
		edate := time.Date(year, time.December, 31, 0, 0, 0, 0, start.Location())
		if year == end.Year() {
			edate = end
		}
		chunks = append(chunks, Chunk{
			BDate: bdate.Format(dateLayout),
			EDate: edate.Format(dateLayout),
		})
	}
	return chunks
}
