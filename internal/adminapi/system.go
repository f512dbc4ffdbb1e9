package adminapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/talkincode/packflow/internal/app"
	"github.com/talkincode/packflow/internal/domain"
	"github.com/talkincode/packflow/internal/webserver"
	"github.com/talkincode/packflow/pkg/metrics"
)

func registerSystemRoutes() {
	admin := webserver.RequireRoles(domain.RoleAdmin)
	webserver.ApiGET("/system/jobs", listJobs, admin)
	webserver.ApiPOST("/system/jobs/:name/run", triggerJob, admin)
	webserver.ApiGET("/system/metrics/:name", metricPoints, admin)
}

func listJobs(c echo.Context) error {
	return ok(c, GetAppContext(c).Jobs())
}

// triggerJob runs a background job immediately
func triggerJob(c echo.Context) error {
	name := strings.TrimSpace(c.Param("name"))
	if err := GetAppContext(c).RunJobNow(name); errors.Is(err, app.ErrUnknownJob) {
		return fail(c, http.StatusNotFound, "JOB_NOT_FOUND", err.Error(), nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "RUN_FAILED", "Failed to run job", err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type metricPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// metricPoints returns the samples of one metric over the last hours (default 1)
func metricPoints(c echo.Context) error {
	name := c.Param("name")
	hours := 1
	if h, err := strconv.Atoi(c.QueryParam("hours")); err == nil && h > 0 && h <= 24*7 {
		hours = h
	}
	end := time.Now()
	pts, err := metrics.Points(name, end.Add(-time.Duration(hours)*time.Hour), end.Add(time.Second))
	if err != nil {
		return fail(c, http.StatusInternalServerError, "METRICS_ERROR", "Failed to query metric", err.Error())
	}
	out := make([]metricPoint, 0, len(pts))
	for _, p := range pts {
		out = append(out, metricPoint{Time: time.Unix(p.Timestamp, 0), Value: p.Value})
	}
	return ok(c, map[string]interface{}{
		"name":    name,
		"counter": metrics.Counter(name),
		"points":  out,
	})
}
