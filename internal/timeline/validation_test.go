package timeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reelnotes/backend/internal/models"
)

func ptr(f float64) *float64 { return &f }

func TestValidateAnnotation(t *testing.T) {
	tests := []struct {
		name  string
		a     models.Annotation
		valid bool
	}{
		{"arrow", models.Annotation{Type: models.AnnotationArrow, Coordinates: models.Coordinates{X: 1, Y: 1, EndX: ptr(2), EndY: ptr(2)}, Color: "red", Size: 1}, true},
		{"arrow missing end", models.Annotation{Type: models.AnnotationArrow, Coordinates: models.Coordinates{X: 1, Y: 1, EndX: ptr(2)}, Color: "red", Size: 1}, false},
		{"line", models.Annotation{Type: models.AnnotationLine, Coordinates: models.Coordinates{EndX: ptr(2), EndY: ptr(3)}, Color: "red", Size: 1}, true},
		{"line infinite end", models.Annotation{Type: models.AnnotationLine, Coordinates: models.Coordinates{EndX: ptr(math.Inf(1)), EndY: ptr(3)}, Color: "red", Size: 1}, false},
		{"circle", models.Annotation{Type: models.AnnotationCircle, Coordinates: models.Coordinates{X: 5, Y: 5, Radius: ptr(3)}, Color: "blue", Size: 2}, true},
		{"circle zero radius", models.Annotation{Type: models.AnnotationCircle, Coordinates: models.Coordinates{Radius: ptr(0)}, Color: "blue", Size: 2}, false},
		{"circle missing radius", models.Annotation{Type: models.AnnotationCircle, Color: "blue", Size: 2}, false},
		{"text", models.Annotation{Type: models.AnnotationText, Color: "black", Size: 12, Text: "here"}, true},
		{"text blank", models.Annotation{Type: models.AnnotationText, Color: "black", Size: 12, Text: "  "}, false},
		{"unknown type", models.Annotation{Type: "polygon", Color: "black", Size: 1}, false},
		{"missing color", models.Annotation{Type: models.AnnotationText, Size: 12, Text: "x"}, false},
		{"zero size", models.Annotation{Type: models.AnnotationText, Color: "black", Text: "x"}, false},
		{"nan x", models.Annotation{Type: models.AnnotationText, Coordinates: models.Coordinates{X: math.NaN()}, Color: "black", Size: 1, Text: "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAnnotation(tt.a)
			if tt.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestValidateFilter(t *testing.T) {
	require.NoError(t, validateFilter(models.CommentFilter{}))
	require.NoError(t, validateFilter(models.CommentFilter{From: ptr(1), To: ptr(1)}))
	require.Error(t, validateFilter(models.CommentFilter{From: ptr(2), To: ptr(1)}))
	require.Error(t, validateFilter(models.CommentFilter{From: ptr(math.NaN())}))
}
