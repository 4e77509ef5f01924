package buoy

// AttrDirectionCompass is the attribute key carrying the 16-point compass
// heading of a direction field.
const AttrDirectionCompass = "direction_compass"

// Device classes understood by the host.
const (
	DeviceClassPressure    = "pressure"
	DeviceClassTemperature = "temperature"
)

// Descriptor declares how one sensor is read out of an observation.
type Descriptor struct {
	ID           string
	Segment      string
	Key          string
	UnitKey      string
	AttributeKey string
	Name         string
	Icon         string
	DeviceClass  string
}

// Descriptors is the static sensor table. Order is the order sensors are
// registered with the host.
var Descriptors = []Descriptor{
	{ID: "wind_direction", Segment: SegmentWind, Key: "direction", UnitKey: "direction_unit", AttributeKey: AttrDirectionCompass, Name: "Wind Direction", Icon: "mdi:compass"},
	{ID: "wind_speed", Segment: SegmentWind, Key: "speed", UnitKey: "speed_unit", Name: "Wind Speed", Icon: "mdi:weather-windy-variant"},
	{ID: "wind_gusts", Segment: SegmentWind, Key: "gusts", UnitKey: "gusts_unit", Name: "Wind Gusts", Icon: "mdi:weather-windy"},
	{ID: "wave_height", Segment: SegmentWaves, Key: "height", UnitKey: "height_unit", Name: "Wave Height", Icon: "mdi:waves"},
	{ID: "wave_period", Segment: SegmentWaves, Key: "period", UnitKey: "period_unit", Name: "Wave Period", Icon: "mdi:camera-timer"},
	{ID: "wave_average_period", Segment: SegmentWaves, Key: "average_period", UnitKey: "average_period_unit", Name: "Wave Average Period", Icon: "mdi:camera-timer"},
	{ID: "wave_direction", Segment: SegmentWaves, Key: "direction", UnitKey: "direction_unit", AttributeKey: AttrDirectionCompass, Name: "Wave Direction", Icon: "mdi:compass"},
	{ID: "weather_pressure", Segment: SegmentWeather, Key: "pressure", UnitKey: "pressure_unit", Name: "Pressure", DeviceClass: DeviceClassPressure},
	{ID: "weather_air_temperature", Segment: SegmentWeather, Key: "air_temperature", UnitKey: "air_temperature_unit", Name: "Air Temperature", DeviceClass: DeviceClassTemperature},
	{ID: "weather_water_temperature", Segment: SegmentWeather, Key: "water_temperature", UnitKey: "water_temperature_unit", Name: "Water Temperature", DeviceClass: DeviceClassTemperature},
	{ID: "weather_dewpoint", Segment: SegmentWeather, Key: "dewpoint", UnitKey: "dewpoint_unit", Name: "Dewpoint", DeviceClass: DeviceClassTemperature},
	{ID: "weather_visibility", Segment: SegmentWeather, Key: "visibility", UnitKey: "visibility_unit", Name: "Visibility", Icon: "mdi:eye"},
	{ID: "weather_pressure_tendency", Segment: SegmentWeather, Key: "pressure_tendency", UnitKey: "pressure_tendency_unit", Name: "Pressure Tendency", DeviceClass: DeviceClassPressure},
	{ID: "weather_tide", Segment: SegmentWeather, Key: "tide", UnitKey: "tide_unit", Name: "Tide", Icon: "mdi:waves-arrow-left"},
}

// LookupDescriptor finds a descriptor by identifier.
func LookupDescriptor(id string) (Descriptor, bool) {
	for _, d := range Descriptors {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}
