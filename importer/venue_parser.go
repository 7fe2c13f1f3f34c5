package importer

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// VenueRecord is one row of a curated venue list, from either the JSON or
// the spreadsheet format.
type VenueRecord struct {
	CanonicalName string   `json:"canonical_name"`
	Address       string   `json:"address"`
	City          string   `json:"city"`
	State         string   `json:"state"`
	PostalCode    string   `json:"postal_code"`
	PlaceID       *string  `json:"place_id,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	Aliases       []string `json:"aliases,omitempty"`
}

// ParseJSON reads a JSON array of venue records. Either a bare array or an
// object with a "venues" key is accepted.
func ParseJSON(r io.Reader) ([]VenueRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read import payload: %w", err)
	}

	var records []VenueRecord
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}

	var wrapped struct {
		Venues []VenueRecord `json:"venues"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse venue JSON: %w", err)
	}
	if wrapped.Venues == nil {
		return nil, fmt.Errorf("parse venue JSON: no venue array found")
	}
	return wrapped.Venues, nil
}

type venueColumns struct {
	name, address, city, state, postal int
	placeID, latitude, longitude       int
	aliases                            int
}

// ParseXLSXFile parses a curated venue spreadsheet. The first sheet is used;
// columns are located by header keyword, not position, so reordered exports
// still load.
func ParseXLSXFile(path string) ([]VenueRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()
	return parseVenueSheet(f)
}

// ParseXLSX parses spreadsheet content from a reader (file uploads).
func ParseXLSX(r io.Reader) ([]VenueRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()
	return parseVenueSheet(f)
}

func parseVenueSheet(f *excelize.File) ([]VenueRecord, error) {
	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("no sheets found in spreadsheet")
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("spreadsheet needs a header row and at least one data row")
	}

	cols := findVenueColumns(rows[0])
	if cols.name == -1 {
		return nil, fmt.Errorf("no venue name column found in header %v", rows[0])
	}

	records := make([]VenueRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		name := cell(row, cols.name)
		if name == "" {
			continue
		}
		rec := VenueRecord{
			CanonicalName: name,
			Address:       cell(row, cols.address),
			City:          cell(row, cols.city),
			State:         cell(row, cols.state),
			PostalCode:    cell(row, cols.postal),
		}
		if v := cell(row, cols.placeID); v != "" {
			rec.PlaceID = &v
		}
		if v, ok := cellFloat(row, cols.latitude); ok {
			rec.Latitude = &v
		}
		if v, ok := cellFloat(row, cols.longitude); ok {
			rec.Longitude = &v
		}
		if v := cell(row, cols.aliases); v != "" {
			for _, alias := range strings.Split(v, ";") {
				if alias = strings.TrimSpace(alias); alias != "" {
					rec.Aliases = append(rec.Aliases, alias)
				}
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func findVenueColumns(headers []string) venueColumns {
	cols := venueColumns{
		name: -1, address: -1, city: -1, state: -1, postal: -1,
		placeID: -1, latitude: -1, longitude: -1, aliases: -1,
	}
	for i, header := range headers {
		h := strings.TrimSpace(strings.ToLower(header))
		switch {
		case cols.name == -1 && (h == "name" || strings.Contains(h, "venue") || strings.Contains(h, "facility")):
			cols.name = i
		case cols.address == -1 && strings.Contains(h, "address"):
			cols.address = i
		case cols.city == -1 && h == "city":
			cols.city = i
		case cols.state == -1 && h == "state":
			cols.state = i
		case cols.postal == -1 && (strings.Contains(h, "zip") || strings.Contains(h, "postal")):
			cols.postal = i
		case cols.placeID == -1 && strings.Contains(h, "place"):
			cols.placeID = i
		case cols.latitude == -1 && strings.Contains(h, "lat"):
			cols.latitude = i
		case cols.longitude == -1 && (strings.Contains(h, "lon") || strings.Contains(h, "lng")):
			cols.longitude = i
		case cols.aliases == -1 && strings.Contains(h, "alias"):
			cols.aliases = i
		}
	}
	return cols
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func cellFloat(row []string, idx int) (float64, bool) {
	raw := cell(row, idx)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
