package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"time"
)

type URLInfo struct {
	RawURL string            `json:"raw_url"`
	Host   string            `json:"host"`
	Path   string            `json:"path"`
	Query  map[string]string `json:"query"`
}

// JobInfo describes one analysis job: what was requested, which
// detector ran, and how long each stage took.
type JobInfo struct {
	ID             string                   `json:"id"`
	BeforeDate     string                   `json:"before_date"`
	AfterDate      string                   `json:"after_date"`
	Detector       string                   `json:"detector"`
	Geometry       string                   `json:"geometry"`
	GeometryArea   float64                  `json:"geometry_area"`
	CacheHit       bool                     `json:"cache_hit"`
	StageDurations map[string]time.Duration `json:"stage_durations"`
}

type MetricsInfo struct {
	ReqTime     string        `json:"req_time"`
	ReqDuration time.Duration `json:"req_duration"`
	URL         URLInfo       `json:"url"`
	RemoteAddr  string        `json:"remote_addr"`
	RemoteHost  string        `json:"remote_host"`
	RemotePort  string        `json:"remote_port"`
	HTTPStatus  int           `json:"http_status"`
	Job         *JobInfo      `json:"job"`
	Error       string        `json:"error,omitempty"`
}

type MetricsCollector struct {
	Info   *MetricsInfo
	logger Logger
}

func NewMetricsCollector(logger Logger) *MetricsCollector {
	return &MetricsCollector{
		Info: &MetricsInfo{
			Job: &JobInfo{StageDurations: map[string]time.Duration{}},
		},
		logger: logger,
	}
}

func (m *MetricsCollector) Log() {
	if m.logger != nil {
		m.logger.Log(m.Info)
	}
}

func (i *MetricsInfo) ToJSON() (string, error) {
	i.normaliseNetworkAddr(i.RemoteAddr)
	i.normaliseURL(&i.URL)

	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(i)
	if err == nil {
		return buf.String(), nil
	} else {
		return "", err
	}
}

func (i *MetricsInfo) normaliseNetworkAddr(addr string) {
	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		i.RemoteHost = host
		i.RemotePort = port
	} else {
		i.RemoteHost = addr
	}
}

func (i *MetricsInfo) normaliseURL(u *URLInfo) {
	r, err := url.Parse(u.RawURL)
	if err != nil {
		return
	}

	u.Host = r.Host
	u.Path = r.Path
	if u.Query == nil {
		u.Query = make(map[string]string)
	}
	for k, v := range r.Query() {
		if len(v) == 1 {
			u.Query[k] = v[0]
		} else if len(v) > 1 {
			u.Query[k] = fmt.Sprintf("%v", v)
		} else {
			u.Query[k] = ""
		}
	}
}
