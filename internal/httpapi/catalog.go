package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/UsotsukiKaze/PicManager/internal/db"
	"github.com/UsotsukiKaze/PicManager/internal/moderation"
	"github.com/UsotsukiKaze/PicManager/internal/validate"
)

type groupView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

func viewGroup(g *db.Group) groupView {
	return groupView{ID: g.ID, Name: g.Name, Description: g.Description, CreatedAt: g.CreatedAt, UpdatedAt: g.UpdatedAt}
}

type characterView struct {
	ID          int64    `json:"id"`
	GroupID     int64    `json:"group_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Nicknames   []string `json:"nicknames"`
	CreatedAt   int64    `json:"created_at"`
	UpdatedAt   int64    `json:"updated_at"`
}

func (s *Server) viewCharacter(r *http.Request, c *db.Character) (characterView, error) {
	nicks, err := s.DB.ListCharacterNicknames(r.Context(), c.ID)
	if err != nil {
		return characterView{}, err
	}
	if nicks == nil {
		nicks = []string{}
	}
	return characterView{
		ID: c.ID, GroupID: c.GroupID, Name: c.Name, Description: c.Description,
		Nicknames: nicks, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}, nil
}

type imageView struct {
	ImageID      string  `json:"image_id"`
	PID          string  `json:"pid,omitempty"`
	Description  string  `json:"description,omitempty"`
	OriginalName string  `json:"original_name,omitempty"`
	Ext          string  `json:"ext"`
	SizeBytes    int64   `json:"size_bytes"`
	Filename     string  `json:"filename"`
	CharacterIDs []int64 `json:"character_ids"`
	CreatedAt    int64   `json:"created_at"`
	UpdatedAt    int64   `json:"updated_at"`
}

func (s *Server) viewImage(r *http.Request, img *db.Image) (imageView, error) {
	tags, err := s.DB.ListImageCharacters(r.Context(), img.ImageID)
	if err != nil {
		return imageView{}, err
	}
	if tags == nil {
		tags = []int64{}
	}
	return imageView{
		ImageID: img.ImageID, PID: img.PID, Description: img.Description,
		OriginalName: img.OriginalName, Ext: img.Ext, SizeBytes: img.SizeBytes,
		Filename: img.FilePath, CharacterIDs: tags,
		CreatedAt: img.CreatedAt, UpdatedAt: img.UpdatedAt,
	}, nil
}

// submit routes a proposal into the engine and acknowledges the outcome.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, id identity, p moderation.Payload, up *moderation.Upload) {
	res, err := s.Engine.Submit(r.Context(), id.caller(), p, up)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.commit(r)
	submitResponse(w, res.RequestID, res.Applied, res.ImageID)
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		groups, err := s.DB.ListGroups(r.Context())
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		out := make([]groupView, 0, len(groups))
		for i := range groups {
			out = append(out, viewGroup(&groups[i]))
		}
		writeJSON(w, http.StatusOK, map[string]any{"groups": out})

	case http.MethodPost:
		id, ok := s.resolveIdentity(w, r)
		if !ok {
			return
		}
		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := decodeJSON(r, &req); err != nil {
			s.writeErr(w, r, err)
			return
		}
		s.submit(w, r, id, moderation.GroupAddPayload{Name: req.Name, Description: req.Description}, nil)

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (s *Server) handleGroupByID(w http.ResponseWriter, r *http.Request) {
	gid, ok := trailingID(r.URL.Path, "/api/groups/")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid group id"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		g, found, err := s.DB.GetGroupByID(r.Context(), gid)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		if !found {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "group not found"})
			return
		}
		chars, err := s.DB.ListCharactersByGroup(r.Context(), gid)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		outChars := make([]characterView, 0, len(chars))
		for i := range chars {
			cv, err := s.viewCharacter(r, &chars[i])
			if err != nil {
				s.serverError(w, r, err)
				return
			}
			outChars = append(outChars, cv)
		}
		writeJSON(w, http.StatusOK, map[string]any{"group": viewGroup(g), "characters": outChars})

	case http.MethodPut:
		id, ok := s.resolveIdentity(w, r)
		if !ok {
			return
		}
		// Pointer fields so omitted keys stay untouched on approval.
		var req struct {
			Name        *string `json:"name"`
			Description *string `json:"description"`
		}
		if err := decodeJSON(r, &req); err != nil {
			s.writeErr(w, r, err)
			return
		}
		s.submit(w, r, id, moderation.GroupEditPayload{GroupID: gid, Name: req.Name, Description: req.Description}, nil)

	case http.MethodDelete:
		id, ok := s.resolveIdentity(w, r)
		if !ok {
			return
		}
		s.submit(w, r, id, moderation.GroupDeletePayload{GroupID: gid}, nil)

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (s *Server) handleCharacters(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		gid, err := strconv.ParseInt(r.URL.Query().Get("group_id"), 10, 64)
		if err != nil || gid <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "group_id is required"})
			return
		}
		chars, err := s.DB.ListCharactersByGroup(r.Context(), gid)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		out := make([]characterView, 0, len(chars))
		for i := range chars {
			cv, err := s.viewCharacter(r, &chars[i])
			if err != nil {
				s.serverError(w, r, err)
				return
			}
			out = append(out, cv)
		}
		writeJSON(w, http.StatusOK, map[string]any{"characters": out})

	case http.MethodPost:
		id, ok := s.resolveIdentity(w, r)
		if !ok {
			return
		}
		var req struct {
			GroupID     int64    `json:"group_id"`
			Name        string   `json:"name"`
			Description string   `json:"description"`
			Nicknames   []string `json:"nicknames"`
		}
		if err := decodeJSON(r, &req); err != nil {
			s.writeErr(w, r, err)
			return
		}
		s.submit(w, r, id, moderation.CharacterAddPayload{
			GroupID: req.GroupID, Name: req.Name, Description: req.Description, Nicknames: req.Nicknames,
		}, nil)

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (s *Server) handleCharacterByID(w http.ResponseWriter, r *http.Request) {
	cid, ok := trailingID(r.URL.Path, "/api/characters/")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid character id"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		c, found, err := s.DB.GetCharacterByID(r.Context(), cid)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		if !found {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "character not found"})
			return
		}
		cv, err := s.viewCharacter(r, c)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"character": cv})

	case http.MethodPut:
		id, ok := s.resolveIdentity(w, r)
		if !ok {
			return
		}
		var req struct {
			Name        *string  `json:"name"`
			Description *string  `json:"description"`
			Nicknames   []string `json:"nicknames"`
		}
		if err := decodeJSON(r, &req); err != nil {
			s.writeErr(w, r, err)
			return
		}
		s.submit(w, r, id, moderation.CharacterEditPayload{
			CharacterID: cid, Name: req.Name, Description: req.Description, Nicknames: req.Nicknames,
		}, nil)

	case http.MethodDelete:
		id, ok := s.resolveIdentity(w, r)
		if !ok {
			return
		}
		s.submit(w, r, id, moderation.CharacterDeletePayload{CharacterID: cid}, nil)

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	imgs, err := s.DB.ListImages(r.Context(), limit, offset)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	out := make([]imageView, 0, len(imgs))
	for i := range imgs {
		iv, err := s.viewImage(r, &imgs[i])
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		out = append(out, iv)
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": out})
}

func (s *Server) handleImageByID(w http.ResponseWriter, r *http.Request) {
	imageID := r.URL.Path[len("/api/images/"):]
	if imageID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid image id"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		img, found, err := s.DB.GetImage(r.Context(), imageID)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		if !found {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "image not found"})
			return
		}
		iv, err := s.viewImage(r, img)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"image": iv})

	case http.MethodPut:
		id, ok := s.resolveIdentity(w, r)
		if !ok {
			return
		}
		var req struct {
			PID          *string `json:"pid"`
			Description  *string `json:"description"`
			CharacterIDs []int64 `json:"character_ids"`
		}
		if err := decodeJSON(r, &req); err != nil {
			s.writeErr(w, r, err)
			return
		}
		s.submit(w, r, id, moderation.ImageEditPayload{
			ImageID: imageID, PID: req.PID, Description: req.Description, CharacterIDs: req.CharacterIDs,
		}, nil)

	case http.MethodDelete:
		id, ok := s.resolveIdentity(w, r)
		if !ok {
			return
		}
		s.submit(w, r, id, moderation.ImageDeletePayload{ImageID: imageID}, nil)

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

// handleUpload takes a multipart image submission: the file plus an
// optional "payload" field holding the image_add JSON body.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, id identity) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	maxBytes := int64(s.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart body"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file field is required"})
		return
	}
	defer file.Close()

	ext, err := validate.ExtFromFilename(header.Filename)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	var payload moderation.ImageAddPayload
	if raw := r.FormValue("payload"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload json"})
			return
		}
	}

	tempName, _, err := s.Files.Quarantine(file, ext)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	res, err := s.Engine.Submit(r.Context(), id.caller(), payload,
		&moderation.Upload{TempName: tempName, OriginalName: header.Filename})
	if err != nil {
		// The submission never landed, so its quarantined file is junk.
		_ = s.Files.RemoveQuarantined(tempName)
		s.writeErr(w, r, err)
		return
	}
	s.commit(r)
	submitResponse(w, res.RequestID, res.Applied, res.ImageID)
}
