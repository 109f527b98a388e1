package policy

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/assetsched/internal/cronutil"
)

// Load читает и валидирует файл определений.
func Load(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	defs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// Parse декодирует и валидирует определения. Неизвестные поля запрещены.
func Parse(data []byte) (*Definitions, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var defs Definitions
	if err := dec.Decode(&defs); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidDefinitions, err)
	}
	if err := defs.Validate(); err != nil {
		return nil, err
	}
	return &defs, nil
}

// Validate проверяет структуру определений.
func (d *Definitions) Validate() error {
	if err := newValidator().Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %w", ErrInvalidDefinitions, formatValidationErrors(verrs))
		}
		return fmt.Errorf("%w: %v", ErrInvalidDefinitions, err)
	}
	if d.Version != CurrentVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, d.Version)
	}
	return nil
}

func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())

	// Имена полей в ошибках совпадают с ключами YAML
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	if err := validate.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		return cronutil.Validate(fl.Field().String()) == nil
	}); err != nil {
		panic(err)
	}

	return validate
}

func formatValidationErrors(verrs validator.ValidationErrors) error {
	errs := make([]error, 0, len(verrs))
	for _, e := range verrs {
		// "Definitions.assets[0].key" → "assets[0].key"
		ns := e.Namespace()
		if _, rest, ok := strings.Cut(ns, "."); ok {
			ns = rest
		}
		if e.Param() != "" {
			errs = append(errs, fmt.Errorf("%s: failed %q (%s)", ns, e.Tag(), e.Param()))
		} else {
			errs = append(errs, fmt.Errorf("%s: failed %q", ns, e.Tag()))
		}
	}
	return errors.Join(errs...)
}
