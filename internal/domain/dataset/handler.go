package dataset

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/respira/insights/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/datasets", h.Upload)
	api.GET("/datasets/current", h.GetCurrent)

	if h.svc.HasArchive() {
		api.GET("/datasets/archive", h.ListArchive)
		api.POST("/datasets/archive/:id/restore", h.Restore)
	}
}

type snapshotResponse struct {
	ID         string `json:"id"`
	UploadedAt string `json:"uploaded_at"`
	Cutoff     string `json:"cutoff"`
	RawCount   int    `json:"raw_count"`
	CohortSize int    `json:"cohort_size"`
}

func toSnapshotResponse(s *Snapshot) snapshotResponse {
	return snapshotResponse{
		ID:         s.ID.String(),
		UploadedAt: s.UploadedAt.Format("2006-01-02T15:04:05Z07:00"),
		Cutoff:     s.Cutoff.Format("2006-01-02"),
		RawCount:   s.RawCount,
		CohortSize: s.CohortSize(),
	}
}

func (h *Handler) Upload(c echo.Context) error {
	snap, err := h.svc.Ingest(c.Request().Context(), c.Request().Body)
	if err != nil {
		if errors.Is(err, ErrMalformedInput) || errors.Is(err, ErrUnexpectedSchema) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, toSnapshotResponse(snap))
}

func (h *Handler) GetCurrent(c echo.Context) error {
	snap, err := h.svc.Current()
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, toSnapshotResponse(snap))
}

func (h *Handler) ListArchive(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListArchive(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Restore(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	snap, err := h.svc.Restore(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, toSnapshotResponse(snap))
}
