package routing

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tatankam/eventmap/internal/models"
	"github.com/tatankam/eventmap/internal/upstream"
)

// DefaultOSRMBaseURL is the OSRM demo server, which only serves driving
const DefaultOSRMBaseURL = "http://router.project-osrm.org"

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates models.Coordinates `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// OSRM implements Router against an OSRM server. Each profile may point at
// its own server since OSRM instances are usually built per profile.
type OSRM struct {
	baseURLs map[models.TravelProfile]string
	client   *http.Client
}

var _ Router = (*OSRM)(nil)

// NewOSRM creates a router; profiles without a URL fall back to the driving one
func NewOSRM(baseURLs map[models.TravelProfile]string, timeout time.Duration) *OSRM {
	urls := make(map[models.TravelProfile]string, len(baseURLs))
	for p, u := range baseURLs {
		if u != "" {
			urls[p] = strings.TrimRight(u, "/")
		}
	}
	if _, ok := urls[models.ProfileDriving]; !ok {
		urls[models.ProfileDriving] = DefaultOSRMBaseURL
	}
	return &OSRM{baseURLs: urls, client: upstream.NewHTTPClient(timeout)}
}

func osrmProfile(p models.TravelProfile) string {
	switch p {
	case models.ProfileCycling:
		return "cycling"
	case models.ProfileWalking:
		return "foot"
	default:
		return "driving"
	}
}

// Route returns the full-resolution geometry of the best route
func (o *OSRM) Route(ctx context.Context, origin, destination models.GeoPoint, profile models.TravelProfile) ([]models.GeoPoint, error) {
	base, ok := o.baseURLs[profile]
	if !ok {
		base = o.baseURLs[models.ProfileDriving]
	}

	// OSRM takes lng,lat;lng,lat
	endpoint := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson&alternatives=false&steps=false",
		base, osrmProfile(profile),
		origin.Lon, origin.Lat,
		destination.Lon, destination.Lat,
	)

	var resp osrmResponse
	err := upstream.DoJSON(ctx, o.client, upstream.Request{
		Service: "osrm",
		Method:  http.MethodGet,
		URL:     endpoint,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Code != "Ok" || len(resp.Routes) == 0 {
		return nil, fmt.Errorf("%w: osrm returned %s %s", ErrNotFound, resp.Code, resp.Message)
	}
	return resp.Routes[0].Geometry.Coordinates, nil
}
