package obscheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AuthLatencyMetric is the histogram the API records per auth endpoint; its
// exemplars carry the trace ids the check follows.
const AuthLatencyMetric = "auth_request_duration_seconds_bucket"

var ErrNoExemplar = errors.New("no trace_id exemplar found")

type Grafana struct {
	BaseURL      string
	User         string
	Password     string
	ServiceName  string
	PrometheusID int
	LokiID       int
	TempoID      int
	Window       time.Duration
	Client       *http.Client
}

type exemplarResponse struct {
	Data []struct {
		Exemplars []struct {
			Labels map[string]string `json:"labels"`
		} `json:"exemplars"`
	} `json:"data"`
}

type tempoResponse struct {
	Batches []json.RawMessage `json:"batches"`
}

type lokiResponse struct {
	Data struct {
		Result []json.RawMessage `json:"result"`
	} `json:"data"`
}

// Verify follows an auth latency exemplar to its Tempo trace and then to Loki
// log lines carrying the same trace id.
func Verify(ctx context.Context, g Grafana) ([]string, error) {
	var details []string
	traceID, err := g.TraceIDFromExemplar(ctx)
	if err != nil {
		return details, err
	}
	details = append(details, "exemplar trace_id="+traceID)

	if err := g.VerifyTrace(ctx, traceID); err != nil {
		return details, err
	}
	details = append(details, "tempo trace lookup: ok")

	if err := g.VerifyLogs(ctx, traceID); err != nil {
		return details, err
	}
	return append(details, "loki trace correlation: ok"), nil
}

func (g Grafana) TraceIDFromExemplar(ctx context.Context) (string, error) {
	end := time.Now()
	q := url.Values{}
	q.Set("query", AuthLatencyMetric)
	q.Set("start", fmt.Sprint(end.Add(-g.window()).Unix()))
	q.Set("end", fmt.Sprint(end.Unix()))
	var payload exemplarResponse
	if err := g.get(ctx, g.proxy(g.PrometheusID, "/api/v1/query_exemplars"), q, &payload); err != nil {
		return "", err
	}
	for _, series := range payload.Data {
		for _, e := range series.Exemplars {
			if tid := e.Labels["trace_id"]; len(tid) == 32 {
				return tid, nil
			}
		}
	}
	return "", ErrNoExemplar
}

func (g Grafana) VerifyTrace(ctx context.Context, traceID string) error {
	var payload tempoResponse
	if err := g.get(ctx, g.proxy(g.TempoID, "/api/traces/"+traceID), nil, &payload); err != nil {
		return err
	}
	if len(payload.Batches) == 0 {
		return fmt.Errorf("tempo trace %s has no batches", traceID)
	}
	return nil
}

func (g Grafana) VerifyLogs(ctx context.Context, traceID string) error {
	end := time.Now()
	q := url.Values{}
	q.Set("query", fmt.Sprintf("{service_name=%q} |= %q", g.ServiceName, "trace_id="+traceID))
	q.Set("start", fmt.Sprint(end.Add(-g.window()).UnixNano()))
	q.Set("end", fmt.Sprint(end.UnixNano()))
	q.Set("limit", "1")
	q.Set("direction", "backward")
	var payload lokiResponse
	if err := g.get(ctx, g.proxy(g.LokiID, "/loki/api/v1/query_range"), q, &payload); err != nil {
		return err
	}
	if len(payload.Data.Result) == 0 {
		return fmt.Errorf("no correlated loki logs found for trace_id %s", traceID)
	}
	return nil
}

func (g Grafana) proxy(datasource int, path string) string {
	return fmt.Sprintf("/api/datasources/proxy/%d%s", datasource, path)
}

func (g Grafana) window() time.Duration {
	if g.Window <= 0 {
		return 20 * time.Minute
	}
	return g.Window
}

func (g Grafana) get(ctx context.Context, path string, query url.Values, out any) error {
	u, err := url.Parse(g.BaseURL)
	if err != nil {
		return err
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.User, g.Password)
	client := g.Client
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("grafana %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
