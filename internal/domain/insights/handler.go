package insights

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/respira/insights/internal/domain/dataset"
	"github.com/respira/insights/pkg/pagination"
)

// ErrPatientNotFound is returned when a per-patient drill-down names an id
// that is not in the cohort.
var ErrPatientNotFound = errors.New("patient not found in cohort")

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/insights")
	g.GET("/report", h.GetReport)
	g.GET("/overview", h.GetOverview)
	g.GET("/engagement", h.GetEngagement)
	g.GET("/features", h.GetFeatures)
	g.GET("/features/by-sex", h.GetSexAdoption)
	g.GET("/correlation", h.GetCorrelation)
	g.GET("/acq", h.GetACQ)
	g.GET("/crises", h.GetCrises)
	g.GET("/records", h.GetRecords)
	g.GET("/weekly/:collection", h.GetWeekly)
	g.GET("/patients", h.GetPatients)
	g.GET("/patients/:id/daily-steps", h.GetDailySteps)
	g.GET("/metrics/:metric/summary", h.GetMetricSummary)
	g.GET("/metrics/:metric/distribution", h.GetMetricDistribution)
}

// wrap maps service errors onto HTTP statuses. A missing dataset is a 409:
// the request is well-formed but the server has nothing to analyze yet.
func wrap(err error) error {
	switch {
	case errors.Is(err, dataset.ErrNoDataset):
		return echo.NewHTTPError(http.StatusConflict, "no dataset uploaded yet")
	case errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) GetReport(c echo.Context) error {
	r, err := h.svc.Report()
	if err != nil {
		return wrap(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) GetOverview(c echo.Context) error {
	o, err := h.svc.Overview()
	if err != nil {
		return wrap(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) GetEngagement(c echo.Context) error {
	e, err := h.svc.Engagement()
	if err != nil {
		return wrap(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) GetFeatures(c echo.Context) error {
	usage, dist, err := h.svc.FeatureUsage()
	if err != nil {
		return wrap(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"usage":        usage,
		"distribution": dist,
	})
}

func (h *Handler) GetSexAdoption(c echo.Context) error {
	rows, err := h.svc.SexAdoption()
	if err != nil {
		return wrap(err)
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *Handler) GetCorrelation(c echo.Context) error {
	groups, err := h.svc.Correlation()
	if err != nil {
		return wrap(err)
	}
	return c.JSON(http.StatusOK, groups)
}

func (h *Handler) GetACQ(c echo.Context) error {
	sec, err := h.svc.ACQ()
	if err != nil {
		return wrap(err)
	}
	return c.JSON(http.StatusOK, sec)
}

func (h *Handler) GetCrises(c echo.Context) error {
	sec, err := h.svc.Crises()
	if err != nil {
		return wrap(err)
	}
	return c.JSON(http.StatusOK, sec)
}

func (h *Handler) GetRecords(c echo.Context) error {
	rec, err := h.svc.Records()
	if err != nil {
		return wrap(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetWeekly(c echo.Context) error {
	col, ok := CollectionByName(c.Param("collection"))
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown collection")
	}
	rows, err := h.svc.Weekly(col)
	if err != nil {
		return wrap(err)
	}
	return c.JSON(http.StatusOK, WeeklyReport{Collection: col.Name, Weeks: rows})
}

func (h *Handler) GetPatients(c echo.Context) error {
	minAge := queryFloat(c, "min_age", 0)
	maxAge := queryFloat(c, "max_age", 200)
	rows, err := h.svc.Patients(minAge, maxAge)
	if err != nil {
		return wrap(err)
	}
	pg := pagination.FromContext(c)
	total := len(rows)
	lo := pg.Offset
	if lo > total {
		lo = total
	}
	hi := lo + pg.Limit
	if hi > total {
		hi = total
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(rows[lo:hi], total, pg.Limit, pg.Offset))
}

func (h *Handler) GetDailySteps(c echo.Context) error {
	year, err := strconv.Atoi(c.QueryParam("year"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "year is required")
	}
	monthNum, err := strconv.Atoi(c.QueryParam("month"))
	if err != nil || monthNum < 1 || monthNum > 12 {
		return echo.NewHTTPError(http.StatusBadRequest, "month must be 1-12")
	}
	rows, err := h.svc.DailySteps(c.Param("id"), year, time.Month(monthNum))
	if err != nil {
		return wrap(err)
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *Handler) GetMetricSummary(c echo.Context) error {
	sum, err := h.svc.MetricSummary(c.Param("metric"))
	if err != nil {
		if errors.Is(err, dataset.ErrNoDataset) {
			return wrap(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) GetMetricDistribution(c echo.Context) error {
	rows, err := h.svc.MetricDistribution(c.Param("metric"))
	if err != nil {
		if errors.Is(err, dataset.ErrNoDataset) {
			return wrap(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, rows)
}

func queryFloat(c echo.Context, name string, def float64) float64 {
	if s := c.QueryParam(name); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
	}
	return def
}
