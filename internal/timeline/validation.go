package timeline

import (
	"fmt"
	"math"
	"strings"

	"github.com/reelnotes/backend/internal/apperr"
	"github.com/reelnotes/backend/internal/models"
)

func validateTimestamp(ts float64) error {
	if math.IsNaN(ts) || math.IsInf(ts, 0) || ts < 0 {
		return apperr.New(apperr.InvalidArgument, "timestamp must be a finite, non-negative number of seconds")
	}
	return nil
}

func validateText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", apperr.New(apperr.InvalidArgument, "comment text is required")
	}
	return trimmed, nil
}

func validateRange(start, end float64) error {
	if !finite(start) || !finite(end) {
		return apperr.New(apperr.InvalidArgument, "range bounds must be finite numbers")
	}
	if start > end {
		return apperr.New(apperr.InvalidArgument, "range start must not exceed end")
	}
	return nil
}

func validateFilter(filter models.CommentFilter) error {
	if filter.From != nil && !finite(*filter.From) {
		return apperr.New(apperr.InvalidArgument, "range start must be a finite number")
	}
	if filter.To != nil && !finite(*filter.To) {
		return apperr.New(apperr.InvalidArgument, "range end must be a finite number")
	}
	if filter.From != nil && filter.To != nil && *filter.From > *filter.To {
		return apperr.New(apperr.InvalidArgument, "range start must not exceed end")
	}
	return nil
}

// ValidateAnnotation checks the shape rules of a single marker.
func ValidateAnnotation(a models.Annotation) error {
	c := a.Coordinates
	if !finite(c.X) || !finite(c.Y) {
		return invalidAnnotation("coordinates must be finite numbers")
	}

	switch a.Type {
	case models.AnnotationArrow, models.AnnotationLine:
		if c.EndX == nil || c.EndY == nil {
			return invalidAnnotation(fmt.Sprintf("%s requires endX and endY", a.Type))
		}
		if !finite(*c.EndX) || !finite(*c.EndY) {
			return invalidAnnotation("coordinates must be finite numbers")
		}
	case models.AnnotationCircle:
		if c.Radius == nil || !finite(*c.Radius) || *c.Radius <= 0 {
			return invalidAnnotation("circle requires a positive radius")
		}
	case models.AnnotationText:
		if strings.TrimSpace(a.Text) == "" {
			return invalidAnnotation("text annotation requires text")
		}
	default:
		return invalidAnnotation(fmt.Sprintf("unknown annotation type %q", a.Type))
	}

	if strings.TrimSpace(a.Color) == "" {
		return invalidAnnotation("color is required")
	}
	if !finite(a.Size) || a.Size <= 0 {
		return invalidAnnotation("size must be positive")
	}
	return nil
}

func validateAnnotations(list []models.Annotation) error {
	for i, a := range list {
		if err := ValidateAnnotation(a); err != nil {
			return apperr.New(apperr.InvalidArgument, fmt.Sprintf("annotation %d: %s", i, apperr.MessageOf(err)))
		}
	}
	return nil
}

func invalidAnnotation(msg string) error {
	return apperr.New(apperr.InvalidArgument, "invalid annotation: "+msg)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
