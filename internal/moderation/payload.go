package moderation

import (
	"encoding/json"
	"fmt"

	"github.com/UsotsukiKaze/PicManager/internal/errs"
	"github.com/UsotsukiKaze/PicManager/internal/validate"
)

// The nine request types. Every pending request carries exactly one of
// these; anything else is rejected at decode time.
const (
	TypeImageAdd        = "image_add"
	TypeImageEdit       = "image_edit"
	TypeImageDelete     = "image_delete"
	TypeGroupAdd        = "group_add"
	TypeGroupEdit       = "group_edit"
	TypeGroupDelete     = "group_delete"
	TypeCharacterAdd    = "character_add"
	TypeCharacterEdit   = "character_edit"
	TypeCharacterDelete = "character_delete"
)

// Payload is the typed body of a request. Implementations check their
// own shape; existence and uniqueness checks against the catalog happen
// in the engine, where they can run inside the deciding transaction.
type Payload interface {
	Type() string
	validate() error
}

type ImageAddPayload struct {
	PID          string  `json:"pid,omitempty"`
	Description  string  `json:"description,omitempty"`
	CharacterIDs []int64 `json:"character_ids,omitempty"`
}

// Edit payloads carry pointers so an absent field leaves the current
// value alone; only what the submitter actually sent gets applied.
type ImageEditPayload struct {
	ImageID      string  `json:"image_id"`
	PID          *string `json:"pid,omitempty"`
	Description  *string `json:"description,omitempty"`
	CharacterIDs []int64 `json:"character_ids,omitempty"`
}

type ImageDeletePayload struct {
	ImageID string `json:"image_id"`
}

type GroupAddPayload struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type GroupEditPayload struct {
	GroupID     int64   `json:"group_id"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type GroupDeletePayload struct {
	GroupID int64 `json:"group_id"`
}

type CharacterAddPayload struct {
	GroupID     int64    `json:"group_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Nicknames   []string `json:"nicknames,omitempty"`
}

type CharacterEditPayload struct {
	CharacterID int64    `json:"character_id"`
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Nicknames   []string `json:"nicknames,omitempty"`
}

type CharacterDeletePayload struct {
	CharacterID int64 `json:"character_id"`
}

func (ImageAddPayload) Type() string        { return TypeImageAdd }
func (ImageEditPayload) Type() string       { return TypeImageEdit }
func (ImageDeletePayload) Type() string     { return TypeImageDelete }
func (GroupAddPayload) Type() string        { return TypeGroupAdd }
func (GroupEditPayload) Type() string       { return TypeGroupEdit }
func (GroupDeletePayload) Type() string     { return TypeGroupDelete }
func (CharacterAddPayload) Type() string    { return TypeCharacterAdd }
func (CharacterEditPayload) Type() string   { return TypeCharacterEdit }
func (CharacterDeletePayload) Type() string { return TypeCharacterDelete }

func (ImageAddPayload) validate() error { return nil }

func (p ImageEditPayload) validate() error {
	return requireImageID(p.ImageID)
}

func (p ImageDeletePayload) validate() error {
	return requireImageID(p.ImageID)
}

func (p GroupAddPayload) validate() error {
	return validate.Name(p.Name)
}

func (p GroupEditPayload) validate() error {
	if p.GroupID <= 0 {
		return fmt.Errorf("%w: group id is required", errs.ErrInvalidInput)
	}
	if p.Name != nil {
		return validate.Name(*p.Name)
	}
	return nil
}

func (p GroupDeletePayload) validate() error {
	if p.GroupID <= 0 {
		return fmt.Errorf("%w: group id is required", errs.ErrInvalidInput)
	}
	return nil
}

func (p CharacterAddPayload) validate() error {
	if p.GroupID <= 0 {
		return fmt.Errorf("%w: group id is required", errs.ErrInvalidInput)
	}
	if err := validate.Name(p.Name); err != nil {
		return err
	}
	return validateNicknames(p.Nicknames)
}

func (p CharacterEditPayload) validate() error {
	if p.CharacterID <= 0 {
		return fmt.Errorf("%w: character id is required", errs.ErrInvalidInput)
	}
	if p.Name != nil {
		if err := validate.Name(*p.Name); err != nil {
			return err
		}
	}
	return validateNicknames(p.Nicknames)
}

func (p CharacterDeletePayload) validate() error {
	if p.CharacterID <= 0 {
		return fmt.Errorf("%w: character id is required", errs.ErrInvalidInput)
	}
	return nil
}

func requireImageID(id string) error {
	if len(id) != 10 {
		return fmt.Errorf("%w: image id must be 10 characters", errs.ErrInvalidInput)
	}
	for _, c := range id {
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return fmt.Errorf("%w: image id must be uppercase hex", errs.ErrInvalidInput)
		}
	}
	return nil
}

func validateNicknames(nicknames []string) error {
	for _, n := range nicknames {
		if err := validate.Name(n); err != nil {
			return fmt.Errorf("nickname: %w", err)
		}
	}
	return nil
}

// DecodePayload parses the JSON body for a request type. Unknown types
// and malformed bodies are invalid input.
func DecodePayload(requestType string, raw []byte) (Payload, error) {
	var p Payload
	switch requestType {
	case TypeImageAdd:
		p = &ImageAddPayload{}
	case TypeImageEdit:
		p = &ImageEditPayload{}
	case TypeImageDelete:
		p = &ImageDeletePayload{}
	case TypeGroupAdd:
		p = &GroupAddPayload{}
	case TypeGroupEdit:
		p = &GroupEditPayload{}
	case TypeGroupDelete:
		p = &GroupDeletePayload{}
	case TypeCharacterAdd:
		p = &CharacterAddPayload{}
	case TypeCharacterEdit:
		p = &CharacterEditPayload{}
	case TypeCharacterDelete:
		p = &CharacterDeletePayload{}
	default:
		return nil, fmt.Errorf("%w: unknown request type %q", errs.ErrInvalidInput, requestType)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("%w: malformed payload: %v", errs.ErrInvalidInput, err)
		}
	}
	out := deref(p)
	if err := out.validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// deref unwraps the pointer used for unmarshalling so callers can
// type-switch on value types.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *ImageAddPayload:
		return *v
	case *ImageEditPayload:
		return *v
	case *ImageDeletePayload:
		return *v
	case *GroupAddPayload:
		return *v
	case *GroupEditPayload:
		return *v
	case *GroupDeletePayload:
		return *v
	case *CharacterAddPayload:
		return *v
	case *CharacterEditPayload:
		return *v
	case *CharacterDeletePayload:
		return *v
	}
	return p
}

// EncodePayload renders a payload for storage with its pending request.
func EncodePayload(p Payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
