// Package sentinel talks to the Copernicus Data Space Ecosystem:
// product discovery through the OData catalogue, authenticated
// downloads, and extraction of RGB rasters from Sentinel-2 products.
package sentinel

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/context"

	"github.com/pradyuth050804/geosentinel-forestwatch/raster"
	"github.com/pradyuth050804/geosentinel-forestwatch/utils"
)

const downloadRetries = 3

// Client is a Copernicus Data Space API client. The access token is
// cached and refreshed shortly before expiry. Safe for concurrent use.
type Client struct {
	cfg      utils.SentinelConfig
	username string
	password string
	client   *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient builds a client from configuration plus the CDSE_USERNAME
// and CDSE_PASSWORD environment variables.
func NewClient(cfg utils.SentinelConfig) (*Client, error) {
	username := os.Getenv("CDSE_USERNAME")
	password := os.Getenv("CDSE_PASSWORD")
	if username == "" || password == "" {
		return nil, fmt.Errorf("CDSE_USERNAME and CDSE_PASSWORD environment variables are required")
	}
	return &Client{
		cfg:      cfg,
		username: username,
		password: password,
		client:   &http.Client{Timeout: 10 * time.Minute},
	}, nil
}

// authToken returns a valid bearer token, requesting a new one via the
// OAuth2 password grant when the cached token is absent or near expiry.
func (c *Client) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {"cdse-public"},
		"username":   {c.username},
		"password":   {c.password},
	}
	req, err := http.NewRequest("POST", c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting access token: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, body)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decoding token response: %v", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token")
	}

	c.token = tok.AccessToken
	// Refresh one minute before the server-side expiry.
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn-60) * time.Second)
	return c.token, nil
}

// Product is one catalogue entry of the OData search.
type Product struct {
	ID          string
	Name        string
	SensingTime time.Time
	CloudCover  float64
}

// bboxWKT renders the region's bounding box as the WKT polygon the
// OData geographic intersection filter expects.
func bboxWKT(reg *raster.Region) string {
	return fmt.Sprintf("POLYGON((%f %f,%f %f,%f %f,%f %f,%f %f))",
		reg.MinLon, reg.MinLat,
		reg.MaxLon, reg.MinLat,
		reg.MaxLon, reg.MaxLat,
		reg.MinLon, reg.MaxLat,
		reg.MinLon, reg.MinLat)
}

// SearchProducts queries the catalogue for Sentinel-2 products that
// intersect the region, were sensed within windowDays before the given
// date (inclusive), and sit under the configured cloud cover limit.
// Results come back least cloudy first.
func (c *Client) SearchProducts(ctx context.Context, reg *raster.Region, date string, windowDays int) ([]Product, error) {
	end, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %v", date, err)
	}
	start := end.AddDate(0, 0, -windowDays)

	filter := fmt.Sprintf("Collection/Name eq 'SENTINEL-2'"+
		" and OData.CSC.Intersects(area=geography'SRID=4326;%s')"+
		" and ContentDate/Start ge %s and ContentDate/Start le %s"+
		" and Attributes/OData.CSC.DoubleAttribute/any(att:att/Name eq 'cloudCover' and att/OData.CSC.DoubleAttribute/Value le %.1f)",
		bboxWKT(reg),
		start.Format("2006-01-02T15:04:05.000Z"),
		end.Format("2006-01-02T23:59:59.999Z"),
		c.cfg.MaxCloudCover)

	query := url.Values{
		"$filter":  {filter},
		"$orderby": {"ContentDate/Start desc"},
		"$expand":  {"Attributes"},
		"$top":     {"20"},
	}
	req, err := http.NewRequest("GET", c.cfg.SearchURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying product catalogue: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("catalogue returned %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Value []struct {
			ID          string `json:"Id"`
			Name        string `json:"Name"`
			ContentDate struct {
				Start time.Time `json:"Start"`
			} `json:"ContentDate"`
			Attributes []struct {
				Name  string      `json:"Name"`
				Value interface{} `json:"Value"`
			} `json:"Attributes"`
		} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding catalogue response: %v", err)
	}

	products := make([]Product, 0, len(payload.Value))
	for _, v := range payload.Value {
		p := Product{ID: v.ID, Name: v.Name, SensingTime: v.ContentDate.Start, CloudCover: -1}
		for _, att := range v.Attributes {
			if att.Name == "cloudCover" {
				if cover, ok := att.Value.(float64); ok {
					p.CloudCover = cover
				}
			}
		}
		products = append(products, p)
	}
	// Least cloudy first, unknown cover last, newest first on ties.
	sort.Slice(products, func(i, j int) bool {
		ac, bc := products[i].CloudCover, products[j].CloudCover
		if ac < 0 {
			ac = 101
		}
		if bc < 0 {
			bc = 101
		}
		if ac != bc {
			return ac < bc
		}
		return products[i].SensingTime.After(products[j].SensingTime)
	})
	return products, nil
}

// DateInfo is one acquisition available over a region.
type DateInfo struct {
	Date       string  `json:"date"`
	CloudCover float64 `json:"cloud_cover"`
	Product    string  `json:"product"`
}

// AvailableDates lists the distinct acquisition dates within the given
// range, keeping the least cloudy product per date.
func (c *Client) AvailableDates(ctx context.Context, reg *raster.Region, startDate, endDate string) ([]DateInfo, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %v", startDate, err)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %v", endDate, err)
	}
	windowDays := int(end.Sub(start).Hours() / 24)
	if windowDays < 0 {
		return nil, fmt.Errorf("start date %s is after end date %s", startDate, endDate)
	}

	products, err := c.SearchProducts(ctx, reg, endDate, windowDays)
	if err != nil {
		return nil, err
	}

	byDate := map[string]DateInfo{}
	for _, p := range products {
		day := p.SensingTime.Format("2006-01-02")
		cur, ok := byDate[day]
		if !ok || (p.CloudCover >= 0 && (cur.CloudCover < 0 || p.CloudCover < cur.CloudCover)) {
			byDate[day] = DateInfo{Date: day, CloudCover: p.CloudCover, Product: p.Name}
		}
	}
	dates := make([]DateInfo, 0, len(byDate))
	for _, info := range byDate {
		dates = append(dates, info)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Date < dates[j].Date })
	return dates, nil
}
