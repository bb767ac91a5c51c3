package models

type Role string

const (
	RoleUser      Role = "user"
	RoleResponder Role = "responder"
	RoleAdmin     Role = "admin"
)

type Category string

const (
	CategoryWeather    Category = "weather"
	CategoryEarthquake Category = "earthquake"
)

type NotificationPreferences struct {
	Weather    bool
	Earthquake bool
}

// Recipient is a registered user as seen by targeting and fanout.
type Recipient struct {
	ID                    int64
	Name                  string
	Email                 string
	Phone                 string
	Role                  Role
	City                  string
	Province              string
	Latitude              *float64
	Longitude             *float64
	OnDuty                bool
	EmergencyContactName  string
	EmergencyContactPhone string
	DeviceTokens          []string
	Preferences           *NotificationPreferences // nil until the user saves preferences
}

// Wants reports whether the recipient accepts notifications of the category.
func (r *Recipient) Wants(c Category) bool {
	if r.Preferences == nil {
		return true
	}
	switch c {
	case CategoryWeather:
		return r.Preferences.Weather
	case CategoryEarthquake:
		return r.Preferences.Earthquake
	default:
		return true
	}
}

func (r *Recipient) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}
