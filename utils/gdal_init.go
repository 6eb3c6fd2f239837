package utils

import (
	"os"

	"github.com/lukeroth/gdal"
)

// InitGdal tunes the GDAL runtime for server use and registers the
// raster drivers. Called once at startup before any dataset is opened.
func InitGdal() {
	setDefaultEnv("GDAL_PAM_ENABLED", "NO")
	setDefaultEnv("GDAL_DISABLE_READDIR_ON_OPEN", "EMPTY_DIR")
	setDefaultEnv("GDAL_MAX_DATASET_POOL_SIZE", "10")

	gdal.AllRegister()
}

func setDefaultEnv(envVar string, defaultVal string) {
	if _, ok := os.LookupEnv(envVar); !ok {
		os.Setenv(envVar, defaultVal)
	}
}
