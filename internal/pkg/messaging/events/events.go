package events

//ShiftLogged is an event that notifies that a shift has been appended to an account's log
type ShiftLogged struct {
	ID        string  `json:"id"`
	Account   string  `json:"account"`
	Date      string  `json:"date"`
	StartHour string  `json:"startHour"`
	Earnings  float64 `json:"earnings"`
	Timestamp string  `json:"timestamp"`
}

//TopicName returns the topic this event is published on
func (sl *ShiftLogged) TopicName() string {
	return "events-shiftlogged"
}

//ContentType returns the content type that this event will be sent as
func (sl *ShiftLogged) ContentType() string {
	return "application/json"
}

//ModelTrained is an event that notifies that an account's earnings model has been replaced
type ModelTrained struct {
	ID          string `json:"id"`
	Account     string `json:"account"`
	RecordCount int    `json:"recordCount"`
	Timestamp   string `json:"timestamp"`
}

//TopicName returns the topic this event is published on
func (mt *ModelTrained) TopicName() string {
	return "events-modeltrained"
}

//ContentType returns the content type that this event will be sent as
func (mt *ModelTrained) ContentType() string {
	return "application/json"
}
