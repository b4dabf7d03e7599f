package commands

const (
	//LogShiftContentType is the content type for shift logging commands
	LogShiftContentType = "application/vnd-shiftadvisor-logshift+json"
)

//LogShift is a command that takes a shift reported by another system and enqueues it for persistence
type LogShift struct {
	Account   string   `json:"account"`
	Date      string   `json:"date"`
	StartHour string   `json:"startHour"`
	EndHour   string   `json:"endHour"`
	Earnings  float64  `json:"earnings"`
	Weather   string   `json:"weather,omitempty"`
	Traffic   *float64 `json:"traffic,omitempty"`
	Latitude  *float64 `json:"lat,omitempty"`
	Longitude *float64 `json:"lon,omitempty"`
}

//TopicName returns the topic shift logging commands arrive on
func (ls *LogShift) TopicName() string {
	return "commands-logshift"
}

//ContentType returns the content type that this command will be sent as
func (ls *LogShift) ContentType() string {
	return LogShiftContentType
}
