package transport

import (
	"errors"
	"fmt"
	"strings"
)

// Platform limits the schema is validated against (Telegram captions are the tightest).
const (
	MaxTitleLen    = 256
	MaxFieldName   = 256
	MaxFieldValue  = 1024
	MaxFields      = 25
	MaxReactions   = 8
	MaxCaptionText = 4096
)

var ErrInvalidMessage = errors.New("transport: invalid message")

// Field is a named value inside an OutMessage.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Image is either a public URL or a platform file id from an earlier upload.
type Image struct {
	URL    string
	FileID string
}

type Attachment struct {
	Name string
	URL  string
}

// OutMessage is the platform-neutral announcement schema. Build it with NewOutMessage.
type OutMessage struct {
	Title       string
	Description string
	Fields      []Field
	Image       *Image
	Attachment  *Attachment
	Footer      string
	// Reactions are the symbols offered as reaction buttons, in display order.
	Reactions []string
}

type MessageOption func(m *OutMessage)

func WithDescription(s string) MessageOption {
	return func(m *OutMessage) { m.Description = s }
}

func WithField(name, value string, inline bool) MessageOption {
	return func(m *OutMessage) { m.Fields = append(m.Fields, Field{Name: name, Value: value, Inline: inline}) }
}

func WithImageURL(url string) MessageOption {
	return func(m *OutMessage) {
		if strings.TrimSpace(url) != "" {
			m.Image = &Image{URL: url}
		}
	}
}

func WithAttachment(name, url string) MessageOption {
	return func(m *OutMessage) { m.Attachment = &Attachment{Name: name, URL: url} }
}

func WithFooter(s string) MessageOption {
	return func(m *OutMessage) { m.Footer = s }
}

func WithReactions(symbols ...string) MessageOption {
	return func(m *OutMessage) { m.Reactions = append(m.Reactions, symbols...) }
}

// NewOutMessage builds and validates a message.
func NewOutMessage(title string, opts ...MessageOption) (*OutMessage, error) {
	m := &OutMessage{Title: title}
	for _, o := range opts {
		if o != nil {
			o(m)
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *OutMessage) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("%w: empty title", ErrInvalidMessage)
	}
	if len(m.Title) > MaxTitleLen {
		return fmt.Errorf("%w: title longer than %d", ErrInvalidMessage, MaxTitleLen)
	}
	if len(m.Fields) > MaxFields {
		return fmt.Errorf("%w: %d fields (max %d)", ErrInvalidMessage, len(m.Fields), MaxFields)
	}
	for i, f := range m.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%w: field %d has no name", ErrInvalidMessage, i)
		}
		if len(f.Name) > MaxFieldName || len(f.Value) > MaxFieldValue {
			return fmt.Errorf("%w: field %q too long", ErrInvalidMessage, f.Name)
		}
	}
	if m.Image != nil && m.Image.URL == "" && m.Image.FileID == "" {
		return fmt.Errorf("%w: image without url or file id", ErrInvalidMessage)
	}
	if m.Attachment != nil && (m.Attachment.Name == "" || m.Attachment.URL == "") {
		return fmt.Errorf("%w: attachment needs name and url", ErrInvalidMessage)
	}
	if len(m.Reactions) > MaxReactions {
		return fmt.Errorf("%w: %d reactions (max %d)", ErrInvalidMessage, len(m.Reactions), MaxReactions)
	}
	seen := make(map[string]struct{}, len(m.Reactions))
	for _, r := range m.Reactions {
		if r == "" {
			return fmt.Errorf("%w: empty reaction symbol", ErrInvalidMessage)
		}
		if _, dup := seen[r]; dup {
			return fmt.Errorf("%w: duplicate reaction %q", ErrInvalidMessage, r)
		}
		seen[r] = struct{}{}
	}
	return nil
}

// SetImageFileID stores the platform handle of the uploaded image so later sends reuse it.
func (m *OutMessage) SetImageFileID(id string) {
	if m == nil || m.Image == nil || id == "" {
		return
	}
	m.Image.FileID = id
}
