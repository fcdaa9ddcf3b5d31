package api

import (
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/vantagesec/mcpwarden/internal/models"
)

var validationsOnce sync.Once

// registerValidations installs the registry's custom binding rules on gin's
// validator engine. The canonical_id tag rejects malformed ids at bind time;
// the registry service revalidates after normalization, so this is the
// friendly error, not the authoritative one.
func registerValidations(log *logrus.Logger) {
	validationsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			log.Warn("Unexpected binding validator engine, skipping custom validations")
			return
		}

		err := v.RegisterValidation("canonical_id", func(fl validator.FieldLevel) bool {
			id := strings.ToLower(strings.TrimSpace(fl.Field().String()))
			return models.ValidateCanonicalID(id) == nil
		})
		if err != nil {
			log.WithError(err).Warn("Failed to register canonical_id validation")
		}
	})
}
