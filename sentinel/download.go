package sentinel

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/context"
)

// Download fetches one product archive and unpacks it under destDir,
// returning the path of the extracted .SAFE directory. Transient
// download failures are retried with a short backoff. An already
// extracted product is reused.
func (c *Client) Download(ctx context.Context, product Product, destDir string) (string, error) {
	if safe := findSAFE(destDir, product.Name); safe != "" {
		return safe, nil
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}

	zipPath := filepath.Join(destDir, product.Name+".zip")
	var lastErr error
	for attempt := 1; attempt <= downloadRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if lastErr = c.downloadZip(ctx, product.ID, zipPath); lastErr == nil {
			break
		}
		time.Sleep(time.Duration(attempt) * 5 * time.Second)
	}
	if lastErr != nil {
		return "", fmt.Errorf("downloading %s after %d attempts: %v", product.Name, downloadRetries, lastErr)
	}
	defer os.Remove(zipPath)

	if err := extractZip(zipPath, destDir); err != nil {
		return "", fmt.Errorf("extracting %s: %v", product.Name, err)
	}
	safe := findSAFE(destDir, product.Name)
	if safe == "" {
		return "", fmt.Errorf("no .SAFE directory found in %s archive", product.Name)
	}
	return safe, nil
}

func (c *Client) downloadZip(ctx context.Context, productID, zipPath string) error {
	token, err := c.authToken(ctx)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s(%s)/$value", c.cfg.DownloadURL, productID)
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("download endpoint returned %d", resp.StatusCode)
	}

	tmp := zipPath + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, zipPath)
}

// extractZip unpacks an archive, refusing entries that would escape
// the destination directory.
func extractZip(zipPath, destDir string) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, f := range zr.File {
		target := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes destination: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// findSAFE locates the extracted .SAFE directory of a product, if any.
func findSAFE(destDir, productName string) string {
	direct := filepath.Join(destDir, productName)
	if strings.HasSuffix(productName, ".SAFE") {
		if info, err := os.Stat(direct); err == nil && info.IsDir() {
			return direct
		}
	}
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return ""
	}
	base := strings.TrimSuffix(productName, ".SAFE")
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), ".SAFE") && strings.HasPrefix(e.Name(), base) {
			return filepath.Join(destDir, e.Name())
		}
	}
	return ""
}
