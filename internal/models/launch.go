package models

// FlightData is one simulated flight as reported by the status service.
type FlightData struct {
	MaxVelocity    float64    `json:"max_velocity"`
	ApogeeTime     float64    `json:"apogee_time"`
	ApogeeAltitude float64    `json:"apogee_altitude"`
	ApogeeX        float64    `json:"apogee_x"`
	ApogeeY        float64    `json:"apogee_y"`
	ImpactX        float64    `json:"impact_x"`
	ImpactY        float64    `json:"impact_y"`
	ImpactVelocity float64    `json:"impact_velocity"`
	Trajectory     Trajectory `json:"flight_data"`
}

// Trajectory holds sampled flight positions. Coords[i] is (x, y, z) at TimeStamps[i].
type Trajectory struct {
	TimeStamps []float64    `json:"time_stamps"`
	Coords     [][3]float64 `json:"coords"`
}

// WeatherData is the forecast the simulation for a day was run against.
type WeatherData struct {
	Time              string  `json:"time"`
	Temperature       float64 `json:"temperature"`
	Pressure          float64 `json:"pressure"`
	WindSpeed         float64 `json:"wind_speed"`
	WindFromDirection float64 `json:"wind_from_direction"`
	Humidity          float64 `json:"humidity"`
}

// Day pairs a simulated flight with the weather it was simulated under.
type Day struct {
	Data    FlightData  `json:"data"`
	Weather WeatherData `json:"weather"`
}

// Data is the status payload: one entry per forecast day.
type Data []Day

// SimulationSettings is the body of a Monte Carlo run request.
type SimulationSettings struct {
	NumberSimulations int     `json:"number_simulations" validate:"required,min=1,max=10000"`
	FuelMass          float64 `json:"fuel_mass" validate:"gt=0"`
	WindFromDirection float64 `json:"wind_from_direction" validate:"gte=0,lte=360"`
	Length            float64 `json:"length" validate:"gt=0"`
}

// ImpactPoint is a simulated landing position.
type ImpactPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MonteCarloResponse is returned by the simulation service for a Monte Carlo run.
type MonteCarloResponse struct {
	Data []ImpactPoint `json:"data"`
}
