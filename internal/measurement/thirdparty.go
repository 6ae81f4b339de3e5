package measurement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/roof"
)

const maxResponseBytes = 4 << 20

// ThirdParty measures roofs through an external aerial-imagery provider.
// An empty base URL disables it.
type ThirdParty struct {
	baseURL        string
	apiKey         string
	client         *http.Client
	probeTimeout   time.Duration
	measureTimeout time.Duration
}

// NewThirdParty constructs a provider client. The probe and measure timeouts
// bound each call independently of the caller's context.
func NewThirdParty(baseURL, apiKey string, probeTimeout, measureTimeout time.Duration) *ThirdParty {
	return &ThirdParty{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		client:         &http.Client{},
		probeTimeout:   probeTimeout,
		measureTimeout: measureTimeout,
	}
}

func (t *ThirdParty) Method() roof.Method { return roof.MethodThirdParty }

// Available calls the provider's health endpoint.
func (t *ThirdParty) Available(ctx context.Context, _ Request) (bool, error) {
	if t.baseURL == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, t.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/health", nil)
	if err != nil {
		return false, err
	}
	t.authorize(req)
	resp, err := t.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("health check: status %d", resp.StatusCode)
	}
	return true, nil
}

// Measure requests a measurement and translates the provider's facets.
func (t *ThirdParty) Measure(ctx context.Context, r Request) (roof.Measurement, error) {
	ctx, cancel := context.WithTimeout(ctx, t.measureTimeout)
	defer cancel()

	payload, err := json.Marshal(providerRequest{Lat: r.Lat, Lng: r.Lng, PlaceID: r.PlaceID})
	if err != nil {
		return roof.Measurement{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/measurements", bytes.NewReader(payload))
	if err != nil {
		return roof.Measurement{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	t.authorize(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return roof.Measurement{}, fmt.Errorf("request measurement: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return roof.Measurement{}, fmt.Errorf("read measurement: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return roof.Measurement{}, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var pr providerResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return roof.Measurement{}, fmt.Errorf("decode measurement: %w", err)
	}
	return pr.translate()
}

func (t *ThirdParty) authorize(req *http.Request) {
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
}

type providerRequest struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	PlaceID string  `json:"place_id,omitempty"`
}

type providerFacet struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	AreaSqFt     float64 `json:"area_sqft"`
	Pitch        string  `json:"pitch"`
	FacetCount   int     `json:"facet_count"`
	HipsValleys  int     `json:"hips_valleys"`
	Penetrations int     `json:"penetrations"`
}

type providerResponse struct {
	ID         string  `json:"id"`
	Confidence float64 `json:"confidence"`
	Imagery    struct {
		Source     string `json:"source"`
		Date       string `json:"date"`
		Resolution string `json:"resolution"`
	} `json:"imagery"`
	Facets []providerFacet `json:"facets"`
}

func (pr providerResponse) translate() (roof.Measurement, error) {
	m := roof.Measurement{
		Quality: qualityFor(pr.Confidence),
		Imagery: roof.Imagery{
			Provider:   pr.Imagery.Source,
			CapturedAt: pr.Imagery.Date,
			Resolution: pr.Imagery.Resolution,
		},
		Metadata: map[string]string{
			"providerMeasurementId": pr.ID,
			"confidence":            strconv.FormatFloat(pr.Confidence, 'f', 2, 64),
		},
	}
	for i, f := range pr.Facets {
		s := roof.Section{
			ID:           f.ID,
			PlanAreaSqFt: f.AreaSqFt,
			Complexity: roof.Complexity{
				Facets:       f.FacetCount,
				HipsValleys:  f.HipsValleys,
				Penetrations: f.Penetrations,
			},
		}
		if s.ID == "" {
			s.ID = fmt.Sprintf("section-%d", i+1)
		}
		if strings.EqualFold(f.Type, "flat") {
			s.Kind = roof.Flat
		} else {
			rise, err := parsePitch(f.Pitch)
			if err != nil {
				return roof.Measurement{}, fmt.Errorf("facet %s: %w", s.ID, err)
			}
			s.Kind = roof.Sloped
			s.RisePer12 = roof.Float(rise)
		}
		s.SystemType = s.Kind.DefaultSystem()
		m.Sections = append(m.Sections, s)
	}
	return m, nil
}

// parsePitch reads a roofing pitch such as "6/12" or a bare rise such as "6".
func parsePitch(p string) (float64, error) {
	p = strings.TrimSpace(p)
	rise, run, found := strings.Cut(p, "/")
	v, err := strconv.ParseFloat(strings.TrimSpace(rise), 64)
	if err != nil {
		return 0, fmt.Errorf("parse pitch %q: %w", p, err)
	}
	if found {
		r, err := strconv.ParseFloat(strings.TrimSpace(run), 64)
		if err != nil || r <= 0 {
			return 0, fmt.Errorf("parse pitch %q: bad run", p)
		}
		v = v * 12 / r
	}
	if v < 0 {
		return 0, fmt.Errorf("parse pitch %q: negative rise", p)
	}
	return v, nil
}

func qualityFor(confidence float64) roof.Quality {
	switch {
	case confidence >= 0.85:
		return roof.QualityHigh
	case confidence >= 0.6:
		return roof.QualityMedium
	default:
		return roof.QualityLow
	}
}
