package events

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/gatherpass/backend/internal/models"
)

var registerOnce sync.Once

// RegisterValidators installs the struct-level rules on gin's validator.
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterStructValidation(validateCreateEvent, CreateEventRequest{})
		}
	})
}

// validateCreateEvent enforces that a price is present exactly when the event is paid.
func validateCreateEvent(sl validator.StructLevel) {
	req := sl.Current().Interface().(CreateEventRequest)
	switch req.Category {
	case models.CategoryPaid:
		if req.Price == nil {
			sl.ReportError(req.Price, "price", "Price", "required_if_paid", "")
		}
	case models.CategoryFree:
		if req.Price != nil {
			sl.ReportError(req.Price, "price", "Price", "excluded_if_free", "")
		}
	}
}
