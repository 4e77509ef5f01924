package ndbc

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/i474232898/ndbc-buoy-sensors/internal/buoy"
)

type stationsDocument struct {
	XMLName  xml.Name         `xml:"stations"`
	Stations []stationElement `xml:"station"`
}

type stationElement struct {
	ID    string  `xml:"id,attr"`
	Name  string  `xml:"name,attr"`
	Lat   float64 `xml:"lat,attr"`
	Lon   float64 `xml:"lon,attr"`
	Elev  string  `xml:"elev,attr"`
	Owner string  `xml:"owner,attr"`
	Type  string  `xml:"type,attr"`
	Met   string  `xml:"met,attr"`
}

// parseStations decodes the active stations directory. Station ids are
// normalized to upper case, the form used in realtime feed file names.
func parseStations(r io.Reader) (map[string]buoy.Station, error) {
	var doc stationsDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode station directory: %w", err)
	}

	stations := make(map[string]buoy.Station, len(doc.Stations))
	for _, el := range doc.Stations {
		id := normalizeID(el.ID)
		if id == "" {
			continue
		}

		st := buoy.Station{
			ID:        id,
			Name:      strings.TrimSpace(el.Name),
			Latitude:  el.Lat,
			Longitude: el.Lon,
			Owner:     el.Owner,
			Type:      el.Type,
		}
		if el.Elev != "" {
			if v, err := strconv.ParseFloat(el.Elev, 64); err == nil {
				st.Elevation = &v
			}
		}
		stations[id] = st
	}

	return stations, nil
}

func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
