package coverage

import (
	"time"

	"record-sync/core/reconcile"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
}

// NewFeature creates the coverage feature. maxWindow caps request windows.
func NewFeature(streams reconcile.StreamRegistry, local reconcile.LocalRepository, policy reconcile.Policy, location *time.Location, maxWindow time.Duration, logger *zap.Logger) *Feature {
	svc := NewService(streams, local, policy, logger)
	return &Feature{service: svc, handler: NewHandler(svc, location, maxWindow)}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "coverage"
}

// IsEnabled reports whether the feature has a database to read from.
func (f *Feature) IsEnabled() bool {
	return f.service.streams != nil && f.service.local != nil
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}
