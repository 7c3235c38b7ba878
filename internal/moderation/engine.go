// Package moderation implements the pending-request state machine that
// gates every catalog mutation. Unprivileged submissions queue for
// review; admins and root apply immediately, leaving a pre-approved
// bookkeeping row so the audit trail stays complete.
package moderation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/UsotsukiKaze/PicManager/internal/db"
	"github.com/UsotsukiKaze/PicManager/internal/errs"
	"github.com/UsotsukiKaze/PicManager/internal/quota"
	"github.com/UsotsukiKaze/PicManager/internal/store"
	"github.com/UsotsukiKaze/PicManager/internal/validate"
)

// Review actions.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// catalog is the slice of query methods the engine needs. Both *db.DB
// and *db.Tx satisfy it, so effects can run inside the deciding
// transaction or directly for submission-time checks.
type catalog interface {
	GetGroupByID(ctx context.Context, id int64) (*db.Group, bool, error)
	GetGroupByName(ctx context.Context, name string) (*db.Group, bool, error)
	CreateGroup(ctx context.Context, name, description string) (int64, error)
	UpdateGroup(ctx context.Context, id int64, name, description string) error
	DeleteGroup(ctx context.Context, id int64) error
	GetCharacterByID(ctx context.Context, id int64) (*db.Character, bool, error)
	CharacterNameTaken(ctx context.Context, groupID int64, name string, excludeID int64) (bool, error)
	CreateCharacter(ctx context.Context, groupID int64, name, description string) (int64, error)
	UpdateCharacter(ctx context.Context, id int64, name, description string) error
	DeleteCharacter(ctx context.Context, id int64) error
	SetCharacterNicknames(ctx context.Context, characterID int64, nicknames []string) error
	GetImage(ctx context.Context, imageID string) (*db.Image, bool, error)
	ImageIDExists(ctx context.Context, imageID string) (bool, error)
	CreateImage(ctx context.Context, img *db.Image) error
	UpdateImage(ctx context.Context, imageID, pid, description string) error
	DeleteImage(ctx context.Context, imageID string) error
	SetImageCharacters(ctx context.Context, imageID string, characterIDs []int64) error
}

// Caller identifies who is submitting or withdrawing: a logged-in user
// (User set) or a guest (GuestIP set).
type Caller struct {
	User    *db.User
	GuestIP string
}

func (c Caller) privileged() bool {
	return c.User != nil && (c.User.Role == db.RoleAdmin || c.User.Role == db.RoleRoot)
}

// Upload points at a quarantined file accompanying an image_add.
type Upload struct {
	TempName     string
	OriginalName string
}

// SubmitResult reports what a submission did. Applied is true when the
// privilege short-circuit ran the effect immediately; ImageID is set
// when an immediate image_add created a catalog entry.
type SubmitResult struct {
	RequestID int64
	Applied   bool
	ImageID   string
}

// Engine drives the request lifecycle.
type Engine struct {
	db    *db.DB
	files *store.Store
	quota *quota.Tracker
	log   *slog.Logger
	now   func() time.Time
}

func New(d *db.DB, files *store.Store, q *quota.Tracker, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{db: d, files: files, quota: q, log: log, now: time.Now}
}

// Submit records a proposed change. Guests spend one unit of their
// daily quota per submission; admins and root skip the queue entirely.
func (e *Engine) Submit(ctx context.Context, caller Caller, p Payload, upload *Upload) (*SubmitResult, error) {
	if caller.User == nil && caller.GuestIP == "" {
		return nil, fmt.Errorf("%w: a session is required to submit", errs.ErrForbidden)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	if p.Type() == TypeImageAdd {
		if upload == nil || upload.TempName == "" {
			return nil, fmt.Errorf("%w: an image upload is required", errs.ErrInvalidInput)
		}
	} else if upload != nil {
		return nil, fmt.Errorf("%w: only image_add carries an upload", errs.ErrInvalidInput)
	}

	if caller.privileged() {
		return e.submitPrivileged(ctx, caller, p, upload)
	}

	// Validate against the live catalog before spending quota, so a
	// doomed submission costs a guest nothing.
	if err := e.checkEffect(ctx, e.db, p, errs.ErrNotFound); err != nil {
		return nil, err
	}
	if caller.User == nil {
		if err := e.quota.Consume(ctx, caller.GuestIP); err != nil {
			return nil, err
		}
	}

	r := e.newRequestRow(caller, p, upload)
	id, err := e.db.CreateRequest(ctx, r)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{RequestID: id}, nil
}

func (e *Engine) submitPrivileged(ctx context.Context, caller Caller, p Payload, upload *Upload) (*SubmitResult, error) {
	now := e.now().Unix()
	r := e.newRequestRow(caller, p, upload)
	r.Status = db.StatusApproved
	r.ReviewedAt = &now
	r.ReviewedBy = &caller.User.ID

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	eff, err := e.applyEffect(ctx, tx, r, p, errs.ErrNotFound)
	if err != nil {
		return nil, err
	}
	if eff.imageID != "" {
		r.ImageID = &eff.imageID
	}
	id, err := tx.CreateRequest(ctx, r)
	if err != nil {
		return nil, err
	}
	if err := e.commitWithFiles(tx, r, eff); err != nil {
		return nil, err
	}
	return &SubmitResult{RequestID: id, Applied: true, ImageID: eff.imageID}, nil
}

func (e *Engine) newRequestRow(caller Caller, p Payload, upload *Upload) *db.PendingRequest {
	r := &db.PendingRequest{
		RequestType: p.Type(),
		Status:      db.StatusPending,
		CreatedAt:   e.now().Unix(),
	}
	if caller.User != nil {
		r.UserID = &caller.User.ID
	} else {
		ip := caller.GuestIP
		r.GuestIP = &ip
	}
	if encoded, err := EncodePayload(p); err == nil {
		r.Payload = encoded
	}
	if upload != nil {
		r.TempPath = upload.TempName
		r.OriginalName = upload.OriginalName
	}
	switch v := p.(type) {
	case ImageEditPayload:
		id := v.ImageID
		r.ImageID = &id
	case ImageDeletePayload:
		id := v.ImageID
		r.ImageID = &id
	}
	return r
}

// Decide resolves a pending request. Approval applies the effect and
// flips the status inside one transaction; if another reviewer resolved
// the request first, nothing is applied and ErrConflict comes back.
// Approval-time validation failures leave the request pending.
func (e *Engine) Decide(ctx context.Context, reviewer *db.User, requestID int64, action, reason string) (*db.PendingRequest, error) {
	if reviewer == nil || (reviewer.Role != db.RoleAdmin && reviewer.Role != db.RoleRoot) {
		return nil, fmt.Errorf("%w: review requires an admin", errs.ErrForbidden)
	}
	r, ok, err := e.db.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: request %d", errs.ErrNotFound, requestID)
	}
	if r.Status != db.StatusPending {
		return nil, fmt.Errorf("%w: request %d already %s", errs.ErrConflict, requestID, r.Status)
	}

	now := e.now().Unix()
	switch action {
	case ActionApprove:
		p, err := DecodePayload(r.RequestType, []byte(r.Payload))
		if err != nil {
			return nil, fmt.Errorf("%w: stored payload unreadable", errs.ErrInvalidState)
		}

		tx, err := e.db.Begin(ctx)
		if err != nil {
			return nil, err
		}
		defer func() { _ = tx.Rollback() }()

		// The catalog may have moved since submission; these re-checks
		// inside the transaction are the authoritative ones.
		eff, err := e.applyEffect(ctx, tx, r, p, errs.ErrInvalidState)
		if err != nil {
			return nil, err
		}
		flipped, err := tx.MarkRequestReviewed(ctx, r.ID, db.StatusApproved, reviewer.ID, "", now)
		if err != nil {
			return nil, err
		}
		if !flipped {
			return nil, fmt.Errorf("%w: request %d decided concurrently", errs.ErrConflict, requestID)
		}
		if err := e.commitWithFiles(tx, r, eff); err != nil {
			return nil, err
		}
		r.Status = db.StatusApproved
		if eff.imageID != "" {
			r.ImageID = &eff.imageID
		}

	case ActionReject:
		flipped, err := e.db.MarkRequestReviewed(ctx, r.ID, db.StatusRejected, reviewer.ID, reason, now)
		if err != nil {
			return nil, err
		}
		if !flipped {
			return nil, fmt.Errorf("%w: request %d decided concurrently", errs.ErrConflict, requestID)
		}
		if r.RequestType == TypeImageAdd && r.TempPath != "" {
			if err := e.files.RemoveQuarantined(r.TempPath); err != nil {
				e.log.Error("removing rejected upload", "request", r.ID, "err", err)
			}
		}
		r.Status = db.StatusRejected
		r.RejectionReason = reason

	default:
		return nil, fmt.Errorf("%w: unknown action %q", errs.ErrInvalidInput, action)
	}

	r.ReviewedAt = &now
	r.ReviewedBy = &reviewer.ID
	return r, nil
}

// Withdraw lets a submitter pull back their own request while it is
// still pending.
func (e *Engine) Withdraw(ctx context.Context, caller Caller, requestID int64) error {
	r, ok, err := e.db.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: request %d", errs.ErrNotFound, requestID)
	}

	owned := false
	switch {
	case caller.User != nil && r.UserID != nil:
		owned = *r.UserID == caller.User.ID
	case caller.User == nil && r.GuestIP != nil:
		owned = caller.GuestIP != "" && *r.GuestIP == caller.GuestIP
	}
	if !owned {
		return fmt.Errorf("%w: not your request", errs.ErrForbidden)
	}
	if r.Status != db.StatusPending {
		return fmt.Errorf("%w: request %d already %s", errs.ErrConflict, requestID, r.Status)
	}

	deleted, err := e.db.DeletePendingRequest(ctx, r.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: request %d decided concurrently", errs.ErrConflict, requestID)
	}
	if r.RequestType == TypeImageAdd && r.TempPath != "" {
		if err := e.files.RemoveQuarantined(r.TempPath); err != nil {
			e.log.Error("removing withdrawn upload", "request", r.ID, "err", err)
		}
	}
	return nil
}

// ListPending returns the review queue, newest first.
func (e *Engine) ListPending(ctx context.Context) ([]db.PendingRequest, error) {
	return e.db.ListPendingRequests(ctx)
}

// ListByUser returns everything a user has submitted, newest first.
func (e *Engine) ListByUser(ctx context.Context, userID int64) ([]db.PendingRequest, error) {
	return e.db.ListRequestsByUser(ctx, userID)
}

// effect is what applyEffect did and which file work is coupled to the
// transaction's fate.
type effect struct {
	imageID    string
	promoteExt string
	removeFile string
}

// commitWithFiles finishes a decision: the quarantined upload is
// promoted first, so a failed move aborts the whole approval and the
// request stays pending; a failed commit moves the file back. Deleting
// a stored file has to wait until the row is gone, so that removal runs
// after commit and failures are only logged.
func (e *Engine) commitWithFiles(tx *db.Tx, r *db.PendingRequest, eff *effect) error {
	if eff.promoteExt != "" {
		if _, err := e.files.Promote(r.TempPath, eff.imageID, eff.promoteExt); err != nil {
			return fmt.Errorf("%w: upload could not be stored", errs.ErrInvalidState)
		}
	}
	if err := tx.Commit(); err != nil {
		if eff.promoteExt != "" {
			if derr := e.files.Demote(eff.imageID, eff.promoteExt, r.TempPath); derr != nil {
				e.log.Error("returning upload to quarantine", "request", r.ID, "err", derr)
			}
		}
		return err
	}
	if eff.removeFile != "" {
		if err := e.files.RemoveStored(eff.removeFile); err != nil {
			e.log.Error("removing deleted image file", "request", r.ID, "err", err)
		}
	}
	return nil
}

// checkEffect runs the semantic checks for a payload without mutating
// anything. missing distinguishes the submission phase (targets that do
// not exist are the caller's mistake) from approval (the catalog drifted
// under a queued request).
func (e *Engine) checkEffect(ctx context.Context, c catalog, p Payload, missing error) error {
	switch v := p.(type) {
	case ImageAddPayload:
		return charactersExist(ctx, c, v.CharacterIDs, missing)
	case ImageEditPayload:
		if _, ok, err := c.GetImage(ctx, v.ImageID); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: image %s", missing, v.ImageID)
		}
		return charactersExist(ctx, c, v.CharacterIDs, missing)
	case ImageDeletePayload:
		if _, ok, err := c.GetImage(ctx, v.ImageID); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: image %s", missing, v.ImageID)
		}
		return nil
	case GroupAddPayload:
		if _, taken, err := c.GetGroupByName(ctx, v.Name); err != nil {
			return err
		} else if taken {
			return fmt.Errorf("%w: group %q already exists", errs.ErrConflict, v.Name)
		}
		return nil
	case GroupEditPayload:
		g, ok, err := c.GetGroupByID(ctx, v.GroupID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: group %d", missing, v.GroupID)
		}
		if v.Name != nil && g.Name != *v.Name {
			if other, taken, err := c.GetGroupByName(ctx, *v.Name); err != nil {
				return err
			} else if taken && other.ID != v.GroupID {
				return fmt.Errorf("%w: group %q already exists", errs.ErrConflict, *v.Name)
			}
		}
		return nil
	case GroupDeletePayload:
		if _, ok, err := c.GetGroupByID(ctx, v.GroupID); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: group %d", missing, v.GroupID)
		}
		return nil
	case CharacterAddPayload:
		if _, ok, err := c.GetGroupByID(ctx, v.GroupID); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: group %d", missing, v.GroupID)
		}
		if taken, err := c.CharacterNameTaken(ctx, v.GroupID, v.Name, 0); err != nil {
			return err
		} else if taken {
			return fmt.Errorf("%w: character %q already in group", errs.ErrConflict, v.Name)
		}
		return nil
	case CharacterEditPayload:
		ch, ok, err := c.GetCharacterByID(ctx, v.CharacterID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: character %d", missing, v.CharacterID)
		}
		if v.Name != nil {
			if taken, err := c.CharacterNameTaken(ctx, ch.GroupID, *v.Name, ch.ID); err != nil {
				return err
			} else if taken {
				return fmt.Errorf("%w: character %q already in group", errs.ErrConflict, *v.Name)
			}
		}
		return nil
	case CharacterDeletePayload:
		if _, ok, err := c.GetCharacterByID(ctx, v.CharacterID); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: character %d", missing, v.CharacterID)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown payload %T", errs.ErrInvalidInput, p)
}

// applyEffect validates and performs a payload's catalog mutation on c,
// returning any file work to run after commit.
func (e *Engine) applyEffect(ctx context.Context, c catalog, r *db.PendingRequest, p Payload, missing error) (*effect, error) {
	if err := e.checkEffect(ctx, c, p, missing); err != nil {
		return nil, err
	}

	switch v := p.(type) {
	case ImageAddPayload:
		size, err := e.files.StatQuarantined(r.TempPath)
		if err != nil {
			return nil, err
		}
		ext, err := validate.ImageExt(strings.TrimPrefix(filepath.Ext(r.TempPath), "."))
		if err != nil {
			return nil, err
		}
		id, err := newImageID(ctx, c)
		if err != nil {
			return nil, err
		}
		img := &db.Image{
			ImageID:      id,
			PID:          v.PID,
			Description:  v.Description,
			OriginalName: r.OriginalName,
			Ext:          ext,
			SizeBytes:    size,
			FilePath:     id + "." + ext,
		}
		if err := c.CreateImage(ctx, img); err != nil {
			return nil, err
		}
		if len(v.CharacterIDs) > 0 {
			if err := c.SetImageCharacters(ctx, id, v.CharacterIDs); err != nil {
				return nil, err
			}
		}
		return &effect{imageID: id, promoteExt: ext}, nil

	case ImageEditPayload:
		// Read-merge-write: fields absent from the payload keep their
		// current values.
		img, _, err := c.GetImage(ctx, v.ImageID)
		if err != nil {
			return nil, err
		}
		pid, desc := img.PID, img.Description
		if v.PID != nil {
			pid = *v.PID
		}
		if v.Description != nil {
			desc = *v.Description
		}
		if err := c.UpdateImage(ctx, v.ImageID, pid, desc); err != nil {
			return nil, err
		}
		if v.CharacterIDs != nil {
			if err := c.SetImageCharacters(ctx, v.ImageID, v.CharacterIDs); err != nil {
				return nil, err
			}
		}
		return &effect{imageID: v.ImageID}, nil

	case ImageDeletePayload:
		img, _, err := c.GetImage(ctx, v.ImageID)
		if err != nil {
			return nil, err
		}
		if err := c.DeleteImage(ctx, v.ImageID); err != nil {
			return nil, err
		}
		return &effect{imageID: v.ImageID, removeFile: img.FilePath}, nil

	case GroupAddPayload:
		if _, err := c.CreateGroup(ctx, v.Name, v.Description); err != nil {
			return nil, err
		}
		return &effect{}, nil

	case GroupEditPayload:
		g, _, err := c.GetGroupByID(ctx, v.GroupID)
		if err != nil {
			return nil, err
		}
		name, desc := g.Name, g.Description
		if v.Name != nil {
			name = *v.Name
		}
		if v.Description != nil {
			desc = *v.Description
		}
		if err := c.UpdateGroup(ctx, v.GroupID, name, desc); err != nil {
			return nil, err
		}
		return &effect{}, nil

	case GroupDeletePayload:
		if err := c.DeleteGroup(ctx, v.GroupID); err != nil {
			return nil, err
		}
		return &effect{}, nil

	case CharacterAddPayload:
		id, err := c.CreateCharacter(ctx, v.GroupID, v.Name, v.Description)
		if err != nil {
			return nil, err
		}
		if len(v.Nicknames) > 0 {
			if err := c.SetCharacterNicknames(ctx, id, v.Nicknames); err != nil {
				return nil, err
			}
		}
		return &effect{}, nil

	case CharacterEditPayload:
		ch, _, err := c.GetCharacterByID(ctx, v.CharacterID)
		if err != nil {
			return nil, err
		}
		name, desc := ch.Name, ch.Description
		if v.Name != nil {
			name = *v.Name
		}
		if v.Description != nil {
			desc = *v.Description
		}
		if err := c.UpdateCharacter(ctx, v.CharacterID, name, desc); err != nil {
			return nil, err
		}
		if v.Nicknames != nil {
			if err := c.SetCharacterNicknames(ctx, v.CharacterID, v.Nicknames); err != nil {
				return nil, err
			}
		}
		return &effect{}, nil

	case CharacterDeletePayload:
		if err := c.DeleteCharacter(ctx, v.CharacterID); err != nil {
			return nil, err
		}
		return &effect{}, nil
	}
	return nil, fmt.Errorf("%w: unknown payload %T", errs.ErrInvalidInput, p)
}

// charactersExist verifies every referenced character ID against the
// catalog.
func charactersExist(ctx context.Context, c catalog, ids []int64, missing error) error {
	for _, id := range ids {
		if _, ok, err := c.GetCharacterByID(ctx, id); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: character %d", missing, id)
		}
	}
	return nil
}

// newImageID allocates an unused ten-character uppercase hex ID.
func newImageID(ctx context.Context, c catalog) (string, error) {
	for i := 0; i < 16; i++ {
		b := make([]byte, 5)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}
		id := strings.ToUpper(hex.EncodeToString(b))
		exists, err := c.ImageIDExists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
	return "", errors.New("image id space exhausted")
}
