package eventmodels

import "time"

type OptionContract struct {
	ID         string     `json:"id"`
	Underlying string     `json:"underlying"`
	Strike     float64    `json:"strike"`
	OptionType OptionType `json:"option_type"`
	Expiration time.Time  `json:"expiration"`
}
