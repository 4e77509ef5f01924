package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/ndbc-buoy-sensors/internal/buoy"
	"github.com/i474232898/ndbc-buoy-sensors/internal/coordinator"
	"github.com/i474232898/ndbc-buoy-sensors/internal/integration"
	"github.com/i474232898/ndbc-buoy-sensors/internal/sensor"
	"github.com/i474232898/ndbc-buoy-sensors/internal/store"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, manager *integration.Manager) {
	v1 := app.Group("/api/v1")

	v1.Get("/stations", func(c *fiber.Ctx) error {
		options, err := manager.ListStations(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "failed to load station directory")
		}
		return c.JSON(options)
	})

	v1.Post("/entries", func(c *fiber.Ctx) error {
		var req createEntryRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		entry, err := manager.SetupEntry(c.UserContext(), req.StationID)
		if err != nil {
			switch {
			case errors.Is(err, integration.ErrAlreadyConfigured):
				return fiber.NewError(fiber.StatusConflict, "single_instance_allowed")
			case errors.Is(err, coordinator.ErrConfigInvalid):
				return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
			case errors.Is(err, coordinator.ErrNotReady):
				return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to set up entry")
		}

		return c.Status(fiber.StatusCreated).JSON(newEntryView(entry))
	})

	v1.Get("/entries", func(c *fiber.Ctx) error {
		entries := manager.Entries()
		views := make([]entryView, 0, len(entries))
		for _, e := range entries {
			views = append(views, newEntryView(e))
		}
		return c.JSON(views)
	})

	v1.Get("/entries/:id", func(c *fiber.Ctx) error {
		entry, err := lookupEntry(manager, c)
		if err != nil {
			return err
		}
		return c.JSON(newEntryView(entry))
	})

	v1.Delete("/entries/:id", func(c *fiber.Ctx) error {
		if err := manager.UnloadEntry(c.Params("id")); err != nil {
			if errors.Is(err, integration.ErrEntryNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "entry not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to unload entry")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	v1.Post("/entries/:id/refresh", func(c *fiber.Ctx) error {
		entry, err := lookupEntry(manager, c)
		if err != nil {
			return err
		}

		if c.QueryBool("async") {
			entry.Coordinator.RequestRefresh()
			return c.Status(fiber.StatusAccepted).JSON(entry.Coordinator.Status())
		}

		if err := entry.Coordinator.RefreshNow(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
				"status":  entry.Coordinator.Status(),
			})
		}
		return c.JSON(entry.Coordinator.Status())
	})

	v1.Get("/entries/:id/sensors", func(c *fiber.Ctx) error {
		entry, err := lookupEntry(manager, c)
		if err != nil {
			return err
		}

		states := make([]sensor.State, 0, len(entry.Sensors))
		for _, p := range entry.Sensors {
			states = append(states, p.State())
		}
		return c.JSON(states)
	})

	v1.Get("/entries/:id/history", func(c *fiber.Ctx) error {
		entry, err := lookupEntry(manager, c)
		if err != nil {
			return err
		}

		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		observations, err := manager.History(entry, req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no observation history for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch observation history")
		}

		return c.JSON(fiber.Map{
			"station_id":   entry.StationID,
			"from":         req.From,
			"to":           req.To,
			"observations": observations,
		})
	})

	v1.Get("/sensors/:uniqueID", func(c *fiber.Ctx) error {
		p, err := manager.Sensor(c.Params("uniqueID"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "sensor not found")
		}
		return c.JSON(p.State())
	})
}

// ErrorHandler renders every error as a JSON body carrying the status code.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterMetrics exposes the Prometheus registry on /metrics.
func RegisterMetrics(app *fiber.App, gatherer prometheus.Gatherer) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

func lookupEntry(manager *integration.Manager, c *fiber.Ctx) (*integration.Entry, error) {
	entry, err := manager.Entry(c.Params("id"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "entry not found")
	}
	return entry, nil
}

// createEntryRequest is the body of POST /entries.
type createEntryRequest struct {
	StationID string `json:"station_id" validate:"required,alphanum,len=5"`
}

// entryView is the JSON shape of a configured entry.
type entryView struct {
	ID        string             `json:"id"`
	UniqueID  string             `json:"unique_id"`
	StationID string             `json:"station_id"`
	Title     string             `json:"title"`
	CreatedAt time.Time          `json:"created_at"`
	Sensors   int                `json:"sensors"`
	Status    coordinator.Status `json:"status"`
	Latest    *buoy.Observation  `json:"latest,omitempty"`
}

func newEntryView(e *integration.Entry) entryView {
	return entryView{
		ID:        e.ID,
		UniqueID:  e.UniqueID,
		StationID: e.StationID,
		Title:     e.Title,
		CreatedAt: e.CreatedAt,
		Sensors:   len(e.Sensors),
		Status:    e.Coordinator.Status(),
		Latest:    e.Coordinator.Data(),
	}
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
