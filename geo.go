// Copyright (C) The Spagen Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spagen

import "math"

const earthRadiusKm = 6371.0088

// normalizeLon maps longitudes onto [0, 360) so cross-meridian datasets plot
// contiguously. Applying it to an already-normalized value is a no-op.
func normalizeLon(lon float64) float64 {
	if lon < 0 {
		return lon + 360
	}
	return lon
}

// haversineKm is the great-circle distance between two lat/lon points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dlat := (lat2 - lat1) * rad
	dlon := (lon2 - lon1) * rad
	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dlon/2)*math.Sin(dlon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}
