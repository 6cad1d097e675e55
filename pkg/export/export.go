// Package export writes call log records in interchange formats.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/regiondispatch/core/calllog"
)

// Header is the CSV column order.
var Header = []string{
	"call_id", "scenario", "category", "zone_id", "location_id", "priority",
	"original_priority", "escalated", "closure", "primary_unit", "units",
	"created_at", "arrived_at", "completed_at", "response_seconds",
}

// WriteJSON writes the records to w as a JSON array.
func WriteJSON(w io.Writer, recs []calllog.Record) error {
	if recs == nil {
		recs = []calllog.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

// WriteCSV writes the records to w with a header row.
func WriteCSV(w io.Writer, recs []calllog.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range recs {
		rec := []string{
			strconv.FormatInt(r.CallID, 10),
			r.Scenario,
			r.Category,
			r.ZoneID,
			r.LocationID,
			strconv.Itoa(int(r.Priority)),
			strconv.Itoa(int(r.OriginalPriority)),
			strconv.FormatBool(r.Escalated),
			r.Closure,
			r.PrimaryUnit,
			strings.Join(r.Units, ";"),
			stamp(r.CreatedAt),
			stamp(r.ArrivedAt),
			stamp(r.CompletedAt),
			strconv.FormatFloat(r.ResponseTime().Seconds(), 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write dispatches on format, "csv" or "json".
func Write(w io.Writer, format string, recs []calllog.Record) error {
	switch strings.ToLower(format) {
	case "csv":
		return WriteCSV(w, recs)
	case "json", "":
		return WriteJSON(w, recs)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
