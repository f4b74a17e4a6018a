package application

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"admission-gateway/middleware/session/domain"

	"github.com/go-playground/validator/v10"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return v
}

// normalize corta espaços e põe username/email em minúsculas.
func normalize(in domain.RegisterInput) domain.RegisterInput {
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	return in
}

func (m *Manager) validateInput(in domain.RegisterInput) error {
	err := m.validate.Struct(in)
	if err == nil {
		return checkPassword(in.Password)
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field())+" ("+fe.Tag()+")")
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(fields, ", "))
}

// maxPasswordBytes é o teto do bcrypt; a tag max do validator conta runas.
const maxPasswordBytes = 72

// checkPassword exige >= 8 caracteres com maiúscula, minúscula e dígito.
func checkPassword(pw string) error {
	if len(pw) > maxPasswordBytes {
		return fmt.Errorf("%w: password (max %d bytes)", domain.ErrInvalidInput, maxPasswordBytes)
	}
	if len([]rune(pw)) < 8 {
		return domain.ErrWeakPassword
	}
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return domain.ErrWeakPassword
	}
	return nil
}
