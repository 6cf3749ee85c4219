package models

// Spend holds a vehicle's card spend aggregates in the fleet currency.
type Spend struct {
	Today      float64 `bson:"today" json:"today" yaml:"today"`
	Last7Days  float64 `bson:"last_7_days" json:"last_7_days" yaml:"last_7_days"`
	Last30Days float64 `bson:"last_30_days" json:"last_30_days" yaml:"last_30_days"`
}

// Vehicle represents a fleet vehicle as reported by the vehicle feed.
type Vehicle struct {
	ID              string   `bson:"_id" json:"id" yaml:"id"`
	Plate           string   `bson:"plate" json:"plate" yaml:"plate"`
	Driver          string   `bson:"driver" json:"driver" yaml:"driver"`
	CurrentLocation Location `bson:"current_location" json:"current_location" yaml:"current_location"`
	Spend           Spend    `bson:"spend" json:"spend" yaml:"spend"`
}
