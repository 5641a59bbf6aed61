package mapsurface

import "ridetrack/internal/model"

// CarIcon tints the moving marker.
func CarIcon(color string) model.Icon { return model.Icon{Kind: model.IconCar, Color: color} }

// PinIcon tints the destination marker.
func PinIcon(color string) model.Icon { return model.Icon{Kind: model.IconPin, Color: color} }
