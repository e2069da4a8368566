package auth

import (
	"channel-chat/errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type SignupRequest struct {
	Name     string `validate:"required,max=64"`
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `validate:"required"`
	Password string `validate:"required"`
}

type CreateChannelRequest struct {
	Name string `validate:"required,max=64"`
}

func ValidateSignup(req SignupRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	return check(req)
}

func ValidateLogin(req LoginRequest) error {
	return check(req)
}

func ValidateCreateChannel(req CreateChannelRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	return check(req)
}

// check turns validator failures into a readable ErrInvalidRequest.
func check(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if ok := asValidationErrors(err, &fields); !ok {
		return fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}
	messages := make([]string, 0, len(fields))
	for _, field := range fields {
		messages = append(messages, fmt.Sprintf("%s failed on %s", strings.ToLower(field.Field()), field.Tag()))
	}
	return fmt.Errorf("%w: %s", errors.ErrInvalidRequest, strings.Join(messages, ", "))
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	fields, ok := err.(validator.ValidationErrors)
	if ok {
		*target = fields
	}
	return ok
}
