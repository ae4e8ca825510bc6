package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tatankam/eventmap/internal/models"
	"github.com/tatankam/eventmap/internal/upstream"
)

// DefaultORSBaseURL is the public OpenRouteService API
const DefaultORSBaseURL = "https://api.openrouteservice.org"

var orsProfiles = map[models.TravelProfile]string{
	models.ProfileDriving: "driving-car",
	models.ProfileCycling: "cycling-regular",
	models.ProfileWalking: "foot-walking",
}

// ORSProfile returns the OpenRouteService name of a travel profile
func ORSProfile(p models.TravelProfile) (string, error) {
	name, ok := orsProfiles[p]
	if !ok {
		return "", fmt.Errorf("%w: unsupported travel profile %q", models.ErrValidation, p)
	}
	return name, nil
}

// OpenRouteService implements Geocoder and Router against the ORS API
type OpenRouteService struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var (
	_ Geocoder = (*OpenRouteService)(nil)
	_ Router   = (*OpenRouteService)(nil)
)

// NewOpenRouteService creates a client; an empty baseURL selects the public API
func NewOpenRouteService(baseURL, apiKey string, timeout time.Duration) (*OpenRouteService, error) {
	if apiKey == "" {
		return nil, errors.New("openrouteservice: api key is required")
	}
	if baseURL == "" {
		baseURL = DefaultORSBaseURL
	}
	return &OpenRouteService{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  upstream.NewHTTPClient(timeout),
	}, nil
}

// featureCollection is the subset of GeoJSON both ORS endpoints return
type featureCollection struct {
	Features []struct {
		Geometry struct {
			Type        string          `json:"type"`
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// Geocode returns the best match for address
func (o *OpenRouteService) Geocode(ctx context.Context, address string) (models.GeoPoint, error) {
	q := url.Values{}
	q.Set("api_key", o.apiKey)
	q.Set("text", address)
	q.Set("size", "1")

	var fc featureCollection
	err := upstream.DoJSON(ctx, o.client, upstream.Request{
		Service: "openrouteservice geocode",
		Method:  http.MethodGet,
		URL:     o.baseURL + "/geocode/search?" + q.Encode(),
	}, &fc)
	if err != nil {
		return models.GeoPoint{}, err
	}
	if len(fc.Features) == 0 {
		return models.GeoPoint{}, fmt.Errorf("%w for address %q", ErrNotFound, address)
	}

	var pair []float64
	if err := json.Unmarshal(fc.Features[0].Geometry.Coordinates, &pair); err != nil || len(pair) < 2 {
		return models.GeoPoint{}, fmt.Errorf("openrouteservice geocode: malformed point geometry")
	}
	return models.GeoPoint{Lon: pair[0], Lat: pair[1]}, nil
}

// Route returns the polyline of the first route for profile
func (o *OpenRouteService) Route(ctx context.Context, origin, destination models.GeoPoint, profile models.TravelProfile) ([]models.GeoPoint, error) {
	name, err := ORSProfile(profile)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"coordinates": [][2]float64{
			{origin.Lon, origin.Lat},
			{destination.Lon, destination.Lat},
		},
	}
	header := http.Header{}
	header.Set("Authorization", o.apiKey)

	var fc featureCollection
	err = upstream.DoJSON(ctx, o.client, upstream.Request{
		Service: "openrouteservice directions",
		Method:  http.MethodPost,
		URL:     o.baseURL + "/v2/directions/" + name + "/geojson",
		Header:  header,
		Body:    body,
	}, &fc)
	if err != nil {
		return nil, err
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("%w: no route between the given points", ErrNotFound)
	}

	var coords models.Coordinates
	if err := json.Unmarshal(fc.Features[0].Geometry.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("openrouteservice directions: malformed line geometry: %w", err)
	}
	return coords, nil
}
