package utils

import (
	"fmt"
	"io/ioutil"

	yaml "gopkg.in/yaml.v2"
)

type ServiceConfig struct {
	Address           string `yaml:"address"`
	DataDir           string `yaml:"data_dir"`
	OutputDir         string `yaml:"output_dir"`
	TempDir           string `yaml:"temp_dir"`
	MaxConcurrentJobs int    `yaml:"max_concurrent_jobs"`
}

// DetectionConfig selects and tunes the change detector and the stages
// around it. Zero values are replaced by defaults on load.
type DetectionConfig struct {
	Variant             string  `yaml:"variant"`
	ModelPath           string  `yaml:"model_path"`
	TileSize            int     `yaml:"tile_size"`
	IndexExpression     string  `yaml:"index_expression"`
	SmoothingSigma      float64 `yaml:"smoothing_sigma"`
	Threshold           float64 `yaml:"threshold"`
	MinPatchPixels      int     `yaml:"min_patch_pixels"`
	PixelSizeMeters     float64 `yaml:"pixel_size_meters"`
	MaxOverlayDimension int     `yaml:"max_overlay_dimension"`
}

// SentinelConfig points at the Copernicus Data Space endpoints.
// Credentials are not configured here; they come from the
// CDSE_USERNAME and CDSE_PASSWORD environment variables.
type SentinelConfig struct {
	TokenURL      string  `yaml:"token_url"`
	SearchURL     string  `yaml:"search_url"`
	DownloadURL   string  `yaml:"download_url"`
	MaxCloudCover float64 `yaml:"max_cloud_cover"`
	SearchDays    int     `yaml:"search_days"`
}

// ExplainConfig points at the text generation service used for the
// plain-language analysis summary. The API key comes from the
// GEMINI_API_KEY environment variable.
type ExplainConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
}

// Config is the struct representing the configuration of a ForestWatch
// server: where data and outputs live, how detection is tuned, and the
// external services the collaborators talk to.
type Config struct {
	ServiceConfig ServiceConfig   `yaml:"service_config"`
	Detection     DetectionConfig `yaml:"detection"`
	Sentinel      SentinelConfig  `yaml:"sentinel"`
	Explain       ExplainConfig   `yaml:"explain"`
}

// LoadConfigFile parses the YAML configuration and fills in defaults
// for anything unset.
func LoadConfigFile(configFile string) (*Config, error) {
	cfg := &Config{}
	data, err := ioutil.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("Error while reading config file: %s. Error: %v", configFile, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("Error at the parsing config file: %s. Error: %v", configFile, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	sc := &cfg.ServiceConfig
	if sc.Address == "" {
		sc.Address = ":8080"
	}
	if sc.DataDir == "" {
		sc.DataDir = "data"
	}
	if sc.OutputDir == "" {
		sc.OutputDir = "static/outputs"
	}
	if sc.TempDir == "" {
		sc.TempDir = "temp_downloads"
	}
	if sc.MaxConcurrentJobs == 0 {
		sc.MaxConcurrentJobs = 2
	}

	det := &cfg.Detection
	if det.Variant == "" {
		det.Variant = "heuristic"
	}
	if det.TileSize == 0 {
		det.TileSize = 256
	}
	if det.SmoothingSigma == 0 {
		det.SmoothingSigma = 2
	}
	if det.Threshold == 0 {
		det.Threshold = 0.5
	}
	if det.MinPatchPixels == 0 {
		det.MinPatchPixels = 50
	}
	if det.PixelSizeMeters == 0 {
		det.PixelSizeMeters = 10
	}

	sen := &cfg.Sentinel
	if sen.TokenURL == "" {
		sen.TokenURL = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"
	}
	if sen.SearchURL == "" {
		sen.SearchURL = "https://catalogue.dataspace.copernicus.eu/odata/v1/Products"
	}
	if sen.DownloadURL == "" {
		sen.DownloadURL = "https://download.dataspace.copernicus.eu/odata/v1/Products"
	}
	if sen.MaxCloudCover == 0 {
		sen.MaxCloudCover = 20
	}
	if sen.SearchDays == 0 {
		sen.SearchDays = 30
	}

	exp := &cfg.Explain
	if exp.Endpoint == "" {
		exp.Endpoint = "https://generativelanguage.googleapis.com/v1beta/models"
	}
	if exp.Model == "" {
		exp.Model = "gemini-1.5-flash"
	}
}
