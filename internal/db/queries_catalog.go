package db

import (
	"context"
	"database/sql"
	"errors"
)

// CreateGroup inserts a group; the unique index on name makes duplicates
// fail at the constraint even if a prior existence check raced.
func (s queries) CreateGroup(ctx context.Context, name, description string) (int64, error) {
	if name == "" {
		return 0, errors.New("group name is required")
	}
	now := nowUnix()
	res, err := s.q.ExecContext(ctx, `
INSERT INTO character_groups(name, description, created_at, updated_at) VALUES(?, ?, ?, ?)
`, name, description, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetGroupByID looks up a group by ID.
func (s queries) GetGroupByID(ctx context.Context, id int64) (*Group, bool, error) {
	return s.getGroup(ctx, `
SELECT id, name, description, created_at, updated_at FROM character_groups WHERE id=?`, id)
}

// GetGroupByName looks up a group by its unique name.
func (s queries) GetGroupByName(ctx context.Context, name string) (*Group, bool, error) {
	return s.getGroup(ctx, `
SELECT id, name, description, created_at, updated_at FROM character_groups WHERE name=?`, name)
}

func (s queries) getGroup(ctx context.Context, query string, arg any) (*Group, bool, error) {
	var g Group
	err := s.q.QueryRowContext(ctx, query, arg).
		Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &g.UpdatedAt)
	if err == nil {
		return &g, true, nil
	}
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	return nil, false, err
}

// UpdateGroup rewrites a group's name and description.
func (s queries) UpdateGroup(ctx context.Context, id int64, name, description string) error {
	if id <= 0 || name == "" {
		return errors.New("invalid group update")
	}
	_, err := s.q.ExecContext(ctx, `
UPDATE character_groups SET name=?, description=?, updated_at=? WHERE id=?
`, name, description, nowUnix(), id)
	return err
}

// DeleteGroup removes a group; characters, their nicknames, and image
// associations go with it via cascading foreign keys.
func (s queries) DeleteGroup(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid group id")
	}
	_, err := s.q.ExecContext(ctx, `DELETE FROM character_groups WHERE id=?`, id)
	return err
}

// ListGroups returns all groups sorted by name.
func (s queries) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT id, name, description, created_at, updated_at FROM character_groups ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// CreateCharacter inserts a character under a group.
func (s queries) CreateCharacter(ctx context.Context, groupID int64, name, description string) (int64, error) {
	if groupID <= 0 || name == "" {
		return 0, errors.New("group id and character name are required")
	}
	now := nowUnix()
	res, err := s.q.ExecContext(ctx, `
INSERT INTO characters(group_id, name, description, created_at, updated_at) VALUES(?, ?, ?, ?, ?)
`, groupID, name, description, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetCharacterByID looks up a character by ID.
func (s queries) GetCharacterByID(ctx context.Context, id int64) (*Character, bool, error) {
	var c Character
	err := s.q.QueryRowContext(ctx, `
SELECT id, group_id, name, description, created_at, updated_at FROM characters WHERE id=?
`, id).Scan(&c.ID, &c.GroupID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err == nil {
		return &c, true, nil
	}
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	return nil, false, err
}

// CharacterNameTaken reports whether a group already has a character with
// this name, excluding excludeID (pass 0 to exclude nothing).
func (s queries) CharacterNameTaken(ctx context.Context, groupID int64, name string, excludeID int64) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `
SELECT COUNT(*) FROM characters WHERE group_id=? AND name=? AND id<>?
`, groupID, name, excludeID).Scan(&n)
	return n > 0, err
}

// UpdateCharacter rewrites a character's name and description.
func (s queries) UpdateCharacter(ctx context.Context, id int64, name, description string) error {
	if id <= 0 || name == "" {
		return errors.New("invalid character update")
	}
	_, err := s.q.ExecContext(ctx, `
UPDATE characters SET name=?, description=?, updated_at=? WHERE id=?
`, name, description, nowUnix(), id)
	return err
}

// DeleteCharacter removes a character, its nicknames, and its image
// associations.
func (s queries) DeleteCharacter(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid character id")
	}
	_, err := s.q.ExecContext(ctx, `DELETE FROM characters WHERE id=?`, id)
	return err
}

// ListCharactersByGroup returns a group's characters sorted by name.
func (s queries) ListCharactersByGroup(ctx context.Context, groupID int64) ([]Character, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT id, group_id, name, description, created_at, updated_at
FROM characters WHERE group_id=? ORDER BY name ASC
`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Character
	for rows.Next() {
		var c Character
		if err := rows.Scan(&c.ID, &c.GroupID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetCharacterNicknames replaces a character's nickname set.
func (s queries) SetCharacterNicknames(ctx context.Context, characterID int64, nicknames []string) error {
	if characterID <= 0 {
		return errors.New("invalid character id")
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM character_nicknames WHERE character_id=?`, characterID); err != nil {
		return err
	}
	for _, n := range nicknames {
		if n == "" {
			continue
		}
		if _, err := s.q.ExecContext(ctx, `
INSERT OR IGNORE INTO character_nicknames(character_id, nickname) VALUES(?, ?)
`, characterID, n); err != nil {
			return err
		}
	}
	return nil
}

// ListCharacterNicknames returns a character's nicknames sorted.
func (s queries) ListCharacterNicknames(ctx context.Context, characterID int64) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT nickname FROM character_nicknames WHERE character_id=? ORDER BY nickname ASC
`, characterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CreateImage inserts an approved image row.
func (s queries) CreateImage(ctx context.Context, img *Image) error {
	if img == nil || img.ImageID == "" || img.FilePath == "" || img.Ext == "" {
		return errors.New("image id, path, and extension are required")
	}
	now := nowUnix()
	_, err := s.q.ExecContext(ctx, `
INSERT INTO images(image_id, pid, description, original_name, ext, size_bytes, file_path, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
`, img.ImageID, img.PID, img.Description, img.OriginalName, img.Ext, img.SizeBytes, img.FilePath, now, now)
	return err
}

// GetImage looks up an image by its public ID.
func (s queries) GetImage(ctx context.Context, imageID string) (*Image, bool, error) {
	var img Image
	err := s.q.QueryRowContext(ctx, `
SELECT image_id, pid, description, original_name, ext, size_bytes, file_path, created_at, updated_at
FROM images WHERE image_id=?
`, imageID).Scan(&img.ImageID, &img.PID, &img.Description, &img.OriginalName, &img.Ext,
		&img.SizeBytes, &img.FilePath, &img.CreatedAt, &img.UpdatedAt)
	if err == nil {
		return &img, true, nil
	}
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	return nil, false, err
}

// ImageIDExists reports whether an image ID is already taken.
func (s queries) ImageIDExists(ctx context.Context, imageID string) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM images WHERE image_id=?`, imageID).Scan(&n)
	return n > 0, err
}

// UpdateImage rewrites an image's mutable metadata.
func (s queries) UpdateImage(ctx context.Context, imageID, pid, description string) error {
	if imageID == "" {
		return errors.New("image id is required")
	}
	_, err := s.q.ExecContext(ctx, `
UPDATE images SET pid=?, description=?, updated_at=? WHERE image_id=?
`, pid, description, nowUnix(), imageID)
	return err
}

// DeleteImage removes an image row and its character associations.
func (s queries) DeleteImage(ctx context.Context, imageID string) error {
	if imageID == "" {
		return errors.New("image id is required")
	}
	_, err := s.q.ExecContext(ctx, `DELETE FROM images WHERE image_id=?`, imageID)
	return err
}

// ListImages returns a page of images, newest first.
func (s queries) ListImages(ctx context.Context, limit, offset int) ([]Image, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.QueryContext(ctx, `
SELECT image_id, pid, description, original_name, ext, size_bytes, file_path, created_at, updated_at
FROM images ORDER BY created_at DESC, image_id DESC LIMIT ? OFFSET ?
`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Image
	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.ImageID, &img.PID, &img.Description, &img.OriginalName, &img.Ext,
			&img.SizeBytes, &img.FilePath, &img.CreatedAt, &img.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

// SetImageCharacters replaces an image's tag set.
func (s queries) SetImageCharacters(ctx context.Context, imageID string, characterIDs []int64) error {
	if imageID == "" {
		return errors.New("image id is required")
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM image_characters WHERE image_id=?`, imageID); err != nil {
		return err
	}
	for _, cid := range characterIDs {
		if _, err := s.q.ExecContext(ctx, `
INSERT OR IGNORE INTO image_characters(image_id, character_id) VALUES(?, ?)
`, imageID, cid); err != nil {
			return err
		}
	}
	return nil
}

// ListImageCharacters returns the character IDs tagged on an image.
func (s queries) ListImageCharacters(ctx context.Context, imageID string) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT character_id FROM image_characters WHERE image_id=? ORDER BY character_id ASC
`, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
