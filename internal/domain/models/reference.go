package models

type Branch struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type HireTypeCode string

const (
	HireOneWay    HireTypeCode = "ONE_WAY"
	HireRoundTrip HireTypeCode = "ROUND_TRIP"
	HireHourly    HireTypeCode = "HOURLY"
	HireDaily     HireTypeCode = "DAILY"
)

type HireType struct {
	ID   int64        `json:"id"`
	Code HireTypeCode `json:"code"`
	Name string       `json:"name"`
}

type VehicleCategory struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type Customer struct {
	ID    int64  `json:"id"`
	Phone string `json:"phone"`
	Name  string `json:"name"`
}
