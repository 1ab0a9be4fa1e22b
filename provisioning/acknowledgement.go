package provisioning

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
)

// Acknowledgement is what a provider posts to the instance registration URI
// once it has provisioned the instance on its side.
type Acknowledgement struct {
	InstanceID        string                   `json:"instance_id" validate:"required"`
	Services          []ServiceDeclaration     `json:"services" validate:"unique=LocalID,dive"`
	Scopes            []ScopeDeclaration       `json:"scopes" validate:"unique=LocalID,dive"`
	NeededScopes      []interfaces.NeededScope `json:"needed_scopes" validate:"dive"`
	DestructionURI    string                   `json:"destruction_uri,omitempty" validate:"omitempty,url"`
	DestructionSecret string                   `json:"destruction_secret,omitempty"`
}

type ServiceDeclaration struct {
	LocalID      string                     `json:"local_id" validate:"required"`
	Name         interfaces.LocalizedString `json:"name"`
	ServiceURI   string                     `json:"service_uri" validate:"omitempty,url"`
	RedirectURIs []string                   `json:"redirect_uris" validate:"dive,url"`
	Visible      bool                       `json:"visible"`
}

type ScopeDeclaration struct {
	LocalID     string                     `json:"local_id" validate:"required"`
	Name        interfaces.LocalizedString `json:"name" validate:"rootlocale"`
	Description interfaces.LocalizedString `json:"description"`
}

// newValidator returns a validator knowing the rootlocale rule: a
// LocalizedString must carry a non-empty locale-independent value.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("rootlocale", func(fl validator.FieldLevel) bool {
		field := fl.Field()
		if field.Kind() != reflect.Map {
			return false
		}
		root := field.MapIndex(reflect.ValueOf(interfaces.RootLocale))
		return root.IsValid() && strings.TrimSpace(root.String()) != ""
	})
	return v
}

// validationError flattens validator errors into one ErrInvalidInput.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", interfaces.ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", interfaces.ErrInvalidInput, strings.Join(msgs, "; "))
}
