package main

/* forestwatch is a web server for satellite based forest change
   monitoring. A client posts an area of interest as a KML boundary
   together with two acquisition dates; the server fetches Sentinel-2
   imagery over the area, runs change detection between the two dates
   and exposes the resulting metrics, imagery and a plain-language
   summary through a small JSON API. Completed analyses are cached on
   disk and replayed on repeated requests. */

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	reuseport "github.com/kavu/go_reuseport"
	"golang.org/x/net/context"

	"github.com/pradyuth050804/geosentinel-forestwatch/explain"
	"github.com/pradyuth050804/geosentinel-forestwatch/kml"
	"github.com/pradyuth050804/geosentinel-forestwatch/metrics"
	proc "github.com/pradyuth050804/geosentinel-forestwatch/processor"
	"github.com/pradyuth050804/geosentinel-forestwatch/raster"
	"github.com/pradyuth050804/geosentinel-forestwatch/sentinel"
	"github.com/pradyuth050804/geosentinel-forestwatch/utils"
)

var (
	serverAddress = flag.String("addr", "", "Server listen address. Overrides the config file.")
	configFile    = flag.String("conf", "config.yaml", "Server config file.")
	serverLogDir  = flag.String("log_dir", "", "Job log directory. \"-\" logs to stdout.")
	verbose       = flag.Bool("v", false, "Verbose mode for more server outputs.")
)

var config *utils.Config

var (
	Error *log.Logger
	Info  *log.Logger
)

var metricsLogger metrics.Logger

const jobTimeout = 30 * time.Minute

// Job tracks one analysis from submission to completion. Every field
// after Status is only valid once Status says so.
type Job struct {
	ID         string              `json:"id"`
	Status     string              `json:"status"`
	BeforeDate string              `json:"before_date"`
	AfterDate  string              `json:"after_date"`
	Detector   string              `json:"detector"`
	Submitted  time.Time           `json:"submitted"`
	Error      string              `json:"error,omitempty"`
	Dir        string              `json:"-"`
	Metrics    *proc.MetricsRecord `json:"-"`
	Summary    string              `json:"-"`
}

const (
	jobQueued    = "queued"
	jobRunning   = "running"
	jobCompleted = "completed"
	jobFailed    = "failed"
)

var (
	jobsMu sync.RWMutex
	jobs   = map[string]*Job{}
)

var sentinelClient *sentinel.Client
var explainClient *explain.Client
var jobLimiter *proc.ConcLimiter

// init initialises the loggers, loads the config file and prepares the
// external service clients. This is the first function to be called in
// main.
func init() {
	Error = log.New(os.Stderr, "FW: ", log.Ldate|log.Ltime|log.Lshortfile)
	Info = log.New(os.Stdout, "FW: ", log.Ldate|log.Ltime|log.Lshortfile)

	flag.Parse()

	cfg, err := utils.LoadConfigFile(*configFile)
	if err != nil {
		Error.Printf("Error in loading config file: %v\n", err)
		panic(err)
	}
	config = cfg
	if *serverAddress != "" {
		config.ServiceConfig.Address = *serverAddress
	}

	if err := os.MkdirAll(config.ServiceConfig.OutputDir, 0755); err != nil {
		panic(err)
	}

	utils.InitGdal()
	jobLimiter = proc.NewConcLimiter(config.ServiceConfig.MaxConcurrentJobs)

	sentinelClient, err = sentinel.NewClient(config.Sentinel)
	if err != nil {
		Info.Printf("Sentinel downloads disabled: %v", err)
		sentinelClient = nil
	}
	explainClient = explain.NewClient(config.Explain)

	if len(*serverLogDir) > 0 {
		if *serverLogDir == "-" {
			metricsLogger = metrics.NewStdoutLogger()
		} else {
			maxLogFileSize := int64(0)
			if val, ok := os.LookupEnv("FW_MAX_LOG_FILE_SIZE"); ok {
				valInt, e := strconv.ParseInt(val, 10, 64)
				if e == nil {
					maxLogFileSize = valInt
				} else {
					Error.Printf("invalid FW_MAX_LOG_FILE_SIZE: %v", e)
				}
			}
			metricsLogger = metrics.NewFileLogger(*serverLogDir, maxLogFileSize, 0, *verbose)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Error.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// parseBoundary extracts the uploaded KML boundary from a multipart
// request.
func parseBoundary(r *http.Request) (*raster.Region, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, fmt.Errorf("invalid multipart request: %v", err)
	}
	file, _, err := r.FormFile("kml")
	if err != nil {
		return nil, fmt.Errorf("missing kml file field")
	}
	defer file.Close()
	return kml.Parse(file)
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func analyzeHandler(w http.ResponseWriter, r *http.Request) {
	reqStart := time.Now()
	collector := metrics.NewMetricsCollector(metricsLogger)
	defer func() {
		collector.Info.ReqDuration = time.Since(reqStart)
		collector.Log()
	}()
	collector.Info.ReqTime = reqStart.Format(time.RFC3339)
	collector.Info.URL.RawURL = r.URL.String()
	collector.Info.RemoteAddr = r.RemoteAddr

	if r.Method != "POST" {
		collector.Info.HTTPStatus = 405
		collector.Info.Error = "POST required"
		writeError(w, 405, "POST required")
		return
	}

	reg, err := parseBoundary(r)
	if err != nil {
		collector.Info.HTTPStatus = 400
		collector.Info.Error = err.Error()
		writeError(w, 400, "%v", err)
		return
	}
	beforeDate := r.FormValue("before_date")
	afterDate := r.FormValue("after_date")
	if !validDate(beforeDate) || !validDate(afterDate) {
		collector.Info.HTTPStatus = 400
		collector.Info.Error = "before_date and after_date must be YYYY-MM-DD"
		writeError(w, 400, "before_date and after_date must be YYYY-MM-DD")
		return
	}
	if beforeDate >= afterDate {
		collector.Info.HTTPStatus = 400
		collector.Info.Error = "before_date must precede after_date"
		writeError(w, 400, "before_date must precede after_date")
		return
	}
	detector := r.FormValue("detector")
	if detector == "" {
		detector = config.Detection.Variant
	}
	if detector != proc.DetectorHeuristic && detector != proc.DetectorLearned {
		collector.Info.HTTPStatus = 400
		collector.Info.Error = fmt.Sprintf("unknown detector variant: %s", detector)
		writeError(w, 400, "unknown detector variant: %s", detector)
		return
	}

	job := &Job{
		ID:         uuid.New().String(),
		Status:     jobQueued,
		BeforeDate: beforeDate,
		AfterDate:  afterDate,
		Detector:   detector,
		Submitted:  time.Now(),
		Dir:        utils.AnalysisDir(config.ServiceConfig.OutputDir, beforeDate, afterDate),
	}
	jobsMu.Lock()
	jobs[job.ID] = job
	jobsMu.Unlock()

	go runJob(job, reg)

	collector.Info.HTTPStatus = 202
	collector.Info.Job.ID = job.ID
	collector.Info.Job.BeforeDate = beforeDate
	collector.Info.Job.AfterDate = afterDate
	collector.Info.Job.Detector = detector
	collector.Info.Job.GeometryArea = reg.AreaM2
	if feat, err := kml.Feature(reg); err == nil {
		if data, err := json.Marshal(&feat); err == nil {
			collector.Info.Job.Geometry = string(data)
		}
	}
	// The job goroutine owns job.Status from here on; at submission the
	// status is always queued.
	writeJSON(w, 202, map[string]string{"job_id": job.ID, "status": jobQueued})
}

func setJobStatus(job *Job, status, errMsg string) {
	jobsMu.Lock()
	job.Status = status
	job.Error = errMsg
	jobsMu.Unlock()
}

// runJob is the background worker of one analysis. All heavy work is
// synchronous within this goroutine; the pipeline itself spawns
// nothing.
func runJob(job *Job, reg *raster.Region) {
	jobLimiter.Increase()
	defer jobLimiter.Decrease()

	jobStart := time.Now()
	collector := metrics.NewMetricsCollector(metricsLogger)
	collector.Info.ReqTime = jobStart.Format(time.RFC3339)
	collector.Info.Job.ID = job.ID
	collector.Info.Job.BeforeDate = job.BeforeDate
	collector.Info.Job.AfterDate = job.AfterDate
	collector.Info.Job.Detector = job.Detector
	collector.Info.Job.GeometryArea = reg.AreaM2
	defer func() {
		collector.Info.ReqDuration = time.Since(jobStart)
		jobsMu.RLock()
		collector.Info.Error = job.Error
		jobsMu.RUnlock()
		collector.Log()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	setJobStatus(job, jobRunning, "")

	// Cache replay: a completed run of this date pair already exists.
	if utils.HasCachedMetrics(job.Dir) {
		rec, err := loadCachedMetrics(job.Dir)
		if err == nil {
			collector.Info.Job.CacheHit = true
			finishJob(ctx, job, rec)
			Info.Printf("job %s: replayed cached analysis %s", job.ID, job.Dir)
			return
		}
		Error.Printf("job %s: unreadable cached metrics, recomputing: %v", job.ID, err)
	}

	if sentinelClient == nil {
		setJobStatus(job, jobFailed, "Sentinel downloads are not configured on this server")
		return
	}

	before, err := fetchRaster(ctx, reg, job.BeforeDate)
	if err != nil {
		setJobStatus(job, jobFailed, fmt.Sprintf("fetching %s imagery: %v", job.BeforeDate, err))
		return
	}
	after, err := fetchRaster(ctx, reg, job.AfterDate)
	if err != nil {
		setJobStatus(job, jobFailed, fmt.Sprintf("fetching %s imagery: %v", job.AfterDate, err))
		return
	}

	params := pipelineParams(job.Detector)
	pipeline, err := proc.NewPipeline(params)
	if err != nil {
		setJobStatus(job, jobFailed, err.Error())
		return
	}
	result, err := pipeline.Run(ctx, before, after, reg, job.Dir)
	if err != nil {
		setJobStatus(job, jobFailed, err.Error())
		return
	}
	collector.Info.Job.StageDurations = result.StageDurations
	if *verbose {
		for stage, d := range result.StageDurations {
			Info.Printf("job %s: stage %s took %v", job.ID, stage, d)
		}
	}
	finishJob(ctx, job, result.Metrics)
}

func finishJob(ctx context.Context, job *Job, rec *proc.MetricsRecord) {
	summary := explainClient.Summarize(ctx, rec, job.BeforeDate, job.AfterDate)
	jobsMu.Lock()
	job.Metrics = rec
	job.Summary = summary
	job.Status = jobCompleted
	jobsMu.Unlock()
}

func pipelineParams(detector string) proc.PipelineParams {
	det := config.Detection
	params := proc.DefaultPipelineParams()
	params.Detector = proc.DetectorOptions{
		Variant:         detector,
		IndexExpression: det.IndexExpression,
		SmoothingSigma:  det.SmoothingSigma,
		ModelPath:       det.ModelPath,
		TileSize:        det.TileSize,
	}
	params.DetectionThreshold = det.Threshold
	params.MinPatchPixels = det.MinPatchPixels
	params.PixelSizeMeters = det.PixelSizeMeters
	params.Compositor.MaxDimension = det.MaxOverlayDimension
	return params
}

// fetchRaster finds the best product for one date and turns it into an
// RGB raster.
func fetchRaster(ctx context.Context, reg *raster.Region, date string) (*raster.Raster, error) {
	products, err := sentinelClient.SearchProducts(ctx, reg, date, config.Sentinel.SearchDays)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("no Sentinel-2 products within %d days before %s", config.Sentinel.SearchDays, date)
	}
	safeDir, err := sentinelClient.Download(ctx, products[0], config.ServiceConfig.TempDir)
	if err != nil {
		return nil, err
	}
	return sentinel.ReadRGBRaster(safeDir)
}

func loadCachedMetrics(dir string) (*proc.MetricsRecord, error) {
	data, err := os.ReadFile(filepath.Join(dir, proc.FileMetrics))
	if err != nil {
		return nil, err
	}
	rec := &proc.MetricsRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func lookupJob(w http.ResponseWriter, r *http.Request, prefix string) *Job {
	id := strings.TrimPrefix(r.URL.Path, prefix)
	jobsMu.RLock()
	job := jobs[id]
	jobsMu.RUnlock()
	if job == nil {
		writeError(w, 404, "no such job: %s", id)
	}
	return job
}

func statusHandler(w http.ResponseWriter, r *http.Request) {
	job := lookupJob(w, r, "/api/status/")
	if job == nil {
		return
	}
	jobsMu.RLock()
	defer jobsMu.RUnlock()
	writeJSON(w, 200, job)
}

func resultsHandler(w http.ResponseWriter, r *http.Request) {
	job := lookupJob(w, r, "/api/results/")
	if job == nil {
		return
	}
	jobsMu.RLock()
	defer jobsMu.RUnlock()
	if job.Status != jobCompleted {
		writeError(w, 409, "job %s is %s", job.ID, job.Status)
		return
	}

	imageBase := "/api/images/" + filepath.Base(job.Dir)
	writeJSON(w, 200, map[string]interface{}{
		"job":     job,
		"metrics": job.Metrics,
		"summary": job.Summary,
		"images": map[string]string{
			"before":  imageBase + "/" + proc.FileBeforeImage,
			"after":   imageBase + "/" + proc.FileAfterImage,
			"overlay": imageBase + "/" + proc.FileOverlay,
			"legend":  imageBase + "/" + proc.FileLegend,
		},
	})
}

// imagesHandler serves the rendered artifacts. Paths are confined to
// the output directory.
func imagesHandler(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, "/api/images/")
	target := filepath.Join(config.ServiceConfig.OutputDir, filepath.Clean("/"+rel))
	root := filepath.Clean(config.ServiceConfig.OutputDir)
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		writeError(w, 400, "invalid image path")
		return
	}
	http.ServeFile(w, r, target)
}

func availableDatesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		writeError(w, 405, "POST required")
		return
	}
	if sentinelClient == nil {
		writeError(w, 503, "Sentinel queries are not configured on this server")
		return
	}
	reg, err := parseBoundary(r)
	if err != nil {
		writeError(w, 400, "%v", err)
		return
	}
	startDate := r.FormValue("start_date")
	endDate := r.FormValue("end_date")
	if !validDate(startDate) || !validDate(endDate) {
		writeError(w, 400, "start_date and end_date must be YYYY-MM-DD")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()
	dates, err := sentinelClient.AvailableDates(ctx, reg, startDate, endDate)
	if err != nil {
		writeError(w, 502, "%v", err)
		return
	}
	writeJSON(w, 200, map[string]interface{}{"dates": dates})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func main() {
	http.HandleFunc("/api/analyze", analyzeHandler)
	http.HandleFunc("/api/status/", statusHandler)
	http.HandleFunc("/api/results/", resultsHandler)
	http.HandleFunc("/api/images/", imagesHandler)
	http.HandleFunc("/api/available-dates", availableDatesHandler)
	http.HandleFunc("/api/health", healthHandler)

	listener, err := reuseport.Listen("tcp", config.ServiceConfig.Address)
	if err != nil {
		Error.Printf("Error listening on %s: %v\n", config.ServiceConfig.Address, err)
		panic(err)
	}
	Info.Printf("ForestWatch is ready on %s", config.ServiceConfig.Address)
	log.Fatal(http.Serve(listener, nil))
}
