package models

import (
	"strings"
	"time"
)

// AnonymousPrefix marks session-scoped pseudo identities issued to link holders.
const AnonymousPrefix = "anon_"

// IsAnonymous reports whether the identifier belongs to an anonymous session.
func IsAnonymous(userID string) bool {
	return strings.HasPrefix(userID, AnonymousPrefix)
}

// User represents an account within ReelNotes.
type User struct {
	ID          string    `json:"uid"`
	Email       string    `json:"email"`
	Password    string    `json:"-"`
	DisplayName string    `json:"displayName,omitempty"`
	PhotoURL    string    `json:"photoURL,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProfileUpdate carries the optional profile fields a user may change.
type ProfileUpdate struct {
	DisplayName *string
	PhotoURL    *string
}

// Actor is the identity a request is performed as. The zero value is an
// unauthenticated caller.
type Actor struct {
	UserID string
}

// Authenticated reports whether the actor carries any identity, anonymous or not.
func (a Actor) Authenticated() bool {
	return a.UserID != ""
}

// Anonymous reports whether the actor is an anonymous session identity.
func (a Actor) Anonymous() bool {
	return IsAnonymous(a.UserID)
}

// Project combines one video with its comment thread.
type Project struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	VideoURL      string    `json:"videoUrl"`
	OwnerID       string    `json:"ownerId"`
	CreatedAt     time.Time `json:"createdAt"`
	ShareableLink string    `json:"shareableLink"`
	Collaborators []string  `json:"collaborators"`
	ThumbnailURL  string    `json:"thumbnailUrl,omitempty"`
	VideoDuration float64   `json:"videoDuration,omitempty"`
}

// VideoMetadata is the enrichment recorded for linked videos.
type VideoMetadata struct {
	ThumbnailURL string
	Duration     float64
}

// Comment is a note anchored to a playback position of a project's video.
type Comment struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"projectId"`
	CommenterID string       `json:"commenterId"`
	Timestamp   float64      `json:"timestamp"`
	Text        string       `json:"text"`
	CreatedAt   time.Time    `json:"createdAt"`
	Annotations []Annotation `json:"annotations,omitempty"`
	Seq         int64        `json:"-"`
}

// CommentPatch lists the comment fields to replace. Nil fields are left untouched.
type CommentPatch struct {
	Text      *string
	Timestamp *float64
}

// Empty reports whether the patch changes nothing.
func (p CommentPatch) Empty() bool {
	return p.Text == nil && p.Timestamp == nil
}

// CommentFilter narrows a comment query. Bounds are inclusive.
type CommentFilter struct {
	From        *float64
	To          *float64
	CommenterID string
}

// IsZero reports whether the filter lets every comment through.
func (f CommentFilter) IsZero() bool {
	return f.From == nil && f.To == nil && f.CommenterID == ""
}

// Matches reports whether the comment falls inside the filter.
func (f CommentFilter) Matches(c Comment) bool {
	if f.From != nil && c.Timestamp < *f.From {
		return false
	}
	if f.To != nil && c.Timestamp > *f.To {
		return false
	}
	if f.CommenterID != "" && c.CommenterID != f.CommenterID {
		return false
	}
	return true
}

// AnnotationType is the closed set of marker shapes.
type AnnotationType string

const (
	AnnotationArrow  AnnotationType = "arrow"
	AnnotationCircle AnnotationType = "circle"
	AnnotationLine   AnnotationType = "line"
	AnnotationText   AnnotationType = "text"
)

// Coordinates positions an annotation on the video frame.
type Coordinates struct {
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	EndX   *float64 `json:"endX,omitempty"`
	EndY   *float64 `json:"endY,omitempty"`
	Radius *float64 `json:"radius,omitempty"`
}

// Annotation is a visual marker attached to a comment.
type Annotation struct {
	Type        AnnotationType `json:"type"`
	Coordinates Coordinates    `json:"coordinates"`
	Color       string         `json:"color"`
	Size        float64        `json:"size"`
	Text        string         `json:"text,omitempty"`
}

// SessionTokens groups the bearer credentials issued to a signed-in identity.
type SessionTokens struct {
	UserID           string    `json:"uid"`
	Anonymous        bool      `json:"anonymous"`
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
