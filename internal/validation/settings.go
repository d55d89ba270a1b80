package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/launch-dashboard/internal/models"
)

// ErrInvalidSettings is returned when a simulation request fails field validation.
var ErrInvalidSettings = errors.New("invalid simulation settings")

var settingsValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidateSimulationSettings checks field bounds on a Monte Carlo request.
// The returned error wraps ErrInvalidSettings and lists each failing JSON field.
func ValidateSimulationSettings(s models.SimulationSettings) error {
	err := settingsValidator.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, jsonFieldName(fe.Field())+" ("+fe.Tag()+")")
	}
	return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(fields, ", "))
}

// jsonFieldName maps struct field names to the wire names clients send.
func jsonFieldName(field string) string {
	switch field {
	case "NumberSimulations":
		return "number_simulations"
	case "FuelMass":
		return "fuel_mass"
	case "WindFromDirection":
		return "wind_from_direction"
	case "Length":
		return "length"
	default:
		return field
	}
}
