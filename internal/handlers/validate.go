// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 4 << 20

// maxFilenameLen caps the download name accepted by /document/save.
const maxFilenameLen = 255

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads a single JSON object into dst and validates it. The
// returned message is safe to show to clients.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) string {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			return "request body is empty"
		case errors.As(err, &maxErr):
			return fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)
		case errors.As(err, &syntaxErr):
			return fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)
		case errors.As(err, &typeErr):
			return fmt.Sprintf("%s has the wrong type", typeErr.Field)
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			return "unknown field " + strings.TrimPrefix(err.Error(), "json: unknown field ")
		default:
			return "malformed JSON"
		}
	}
	if dec.More() {
		return "request body must contain a single JSON object"
	}
	return validateRequest(dst)
}

// validateRequest runs struct validation and returns the first failure as
// a readable message, or "" when the value is valid.
func validateRequest(v any) string {
	err := validate.Struct(v)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "uuid":
		return fe.Field() + " must be a UUID"
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "required_without":
		return fmt.Sprintf("%s or %s is required", fe.Field(), snakeCase(fe.Param()))
	default:
		return fe.Field() + " is invalid"
	}
}

// snakeCase maps the Go field names used in cross-field tags to JSON names.
func snakeCase(s string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range s {
		upper := r >= 'A' && r <= 'Z'
		if upper {
			if prevLower {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
		prevLower = !upper
	}
	return b.String()
}

// checkFilename validates a download name for /document/save and returns
// the name to use. An empty name defaults to article.md and a name with no
// extension gets .md appended.
func checkFilename(name string) (string, string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "article.md", ""
	}
	if len(name) > maxFilenameLen {
		return "", "filename is too long"
	}
	if name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return "", "filename must not start with a dot"
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(`/\"`+"`:*?<>|", r) {
			return "", "filename contains an invalid character"
		}
	}
	if !strings.Contains(name, ".") {
		name += ".md"
	}
	return name, ""
}
