package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yuqie6/WrestleQuest/internal/bootstrap"
	"github.com/yuqie6/WrestleQuest/internal/catalog"
	"github.com/yuqie6/WrestleQuest/internal/dto"
	"github.com/yuqie6/WrestleQuest/internal/pkg/buildinfo"
	"github.com/yuqie6/WrestleQuest/internal/progression"
	"github.com/yuqie6/WrestleQuest/internal/service"
)

type apiServer struct {
	core     *bootstrap.Core
	watching bool
}

func newAPI(core *bootstrap.Core, watching bool) *apiServer {
	return &apiServer{core: core, watching: watching}
}

func (a *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"name":       a.core.Cfg.App.Name,
		"version":    buildinfo.String(),
		"started_at": a.core.StartedAt.Format(time.RFC3339),
		"safe_mode":  a.core.DB.SafeMode,
	})
}

func (a *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildStatus(a.core, a.watching))
}

func (a *apiServer) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.NewCatalogDTO())
}

func (a *apiServer) handleCatalogSkill(w http.ResponseWriter, r *http.Request) {
	idx, ok := parseSkill(chi.URLParam(r, "skill"))
	if !ok {
		writeError(w, http.StatusNotFound, "UNKNOWN_SKILL", "未知技能: "+chi.URLParam(r, "skill"))
		return
	}
	info, _ := catalog.SkillAt(idx)
	writeJSON(w, http.StatusOK, dto.NewCatalogSkillDTO(idx, info))
}

func (a *apiServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	st, err := a.core.Services.Progress.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		a.writeServiceError(w, err, &st)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewProgressDTO(st))
}

func (a *apiServer) handleLog(w http.ResponseWriter, r *http.Request) {
	idx, ok := parseSkill(chi.URLParam(r, "skill"))
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_SKILL", "技能索引无效: "+chi.URLParam(r, "skill"))
		return
	}
	var req dto.LogRequestDTO
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	res, err := a.core.Services.Progress.Apply(r.Context(), chi.URLParam(r, "userID"), progression.ApplyInput{
		SkillIndex: idx,
		Activity:   req.Activity,
		Duration:   req.Duration,
		Custom:     req.Custom,
	})
	if err != nil {
		var st *service.Status
		if res != nil {
			st = &res.Status
		}
		a.writeServiceError(w, err, st)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewApplyResultDTO(res))
}

func (a *apiServer) handleUndo(w http.ResponseWriter, r *http.Request) {
	idx, ok := parseSkill(chi.URLParam(r, "skill"))
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_SKILL", "技能索引无效: "+chi.URLParam(r, "skill"))
		return
	}
	res, err := a.core.Services.Progress.Undo(r.Context(), chi.URLParam(r, "userID"), idx)
	if err != nil {
		var st *service.Status
		if res != nil {
			st = &res.Status
		}
		a.writeServiceError(w, err, st)
		return
	}
	if !res.Outcome.Applied {
		p := dto.NewProgressDTO(res.Status)
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:    apiError{Code: "NOT_APPLICABLE", Message: "该技能当前没有可撤销的点数"},
			Progress: p,
		})
		return
	}
	writeJSON(w, http.StatusOK, dto.NewUndoResultDTO(res))
}

func (a *apiServer) handleProfile(w http.ResponseWriter, r *http.Request) {
	var req dto.ProfileRequestDTO
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	st, err := a.core.Services.Progress.UpdateProfile(r.Context(), chi.URLParam(r, "userID"), progression.ProfileInput{
		Name:  req.Name,
		Quest: req.Quest,
	})
	if err != nil {
		a.writeServiceError(w, err, &st)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewProgressDTO(st))
}

func (a *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	q := r.URL.Query()

	if date := q.Get("date"); date != "" {
		rows, err := a.core.Services.Progress.HistoryOn(r.Context(), userID, date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_DATE", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, dto.NewHistoryDTO(rows))
		return
	}

	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	rows, err := a.core.Services.Progress.History(r.Context(), userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dto.NewHistoryDTO(rows))
}

func (a *apiServer) handleUsers(w http.ResponseWriter, r *http.Request) {
	ids, err := a.core.Repos.Progress.ListUserIDs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, dto.UserListDTO{Users: ids})
}

func (a *apiServer) handleTotals(w http.ResponseWriter, r *http.Request) {
	rows, err := a.core.Repos.ActivityLog.TotalsBySkill(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dto.NewSkillTotalsDTO(rows))
}

// writeServiceError 服务层错误映射为 HTTP 状态；持久化失败时附带已更新的进度
func (a *apiServer) writeServiceError(w http.ResponseWriter, err error, st *service.Status) {
	switch {
	case errors.Is(err, progression.ErrInvalidSkill):
		writeError(w, http.StatusBadRequest, "INVALID_SKILL", err.Error())
	case errors.Is(err, service.ErrInvalidProfile):
		writeError(w, http.StatusBadRequest, "INVALID_PROFILE", err.Error())
	case errors.Is(err, service.ErrPersist):
		resp := errorResponse{Error: apiError{Code: "PERSIST_FAILED", Message: err.Error()}}
		if st != nil && st.UserID != "" {
			resp.Progress = dto.NewProgressDTO(*st)
		}
		writeJSON(w, http.StatusServiceUnavailable, resp)
	case errors.Is(err, service.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}

func buildStatus(core *bootstrap.Core, watching bool) dto.StatusDTO {
	cfg := core.Cfg
	engine := core.Services.Progress.Engine()
	tz := ""
	if engine.Location != nil {
		tz = engine.Location.String()
	}
	return dto.StatusDTO{
		App: dto.AppStatusDTO{
			Name:      cfg.App.Name,
			Version:   buildinfo.String(),
			StartedAt: core.StartedAt.Format(time.RFC3339),
			UptimeSec: int64(time.Since(core.StartedAt).Seconds()),
			SafeMode:  core.DB.SafeMode,
		},
		Storage: dto.StorageStatusDTO{
			DBPath:         core.DB.Path,
			SchemaVersion:  core.DB.SchemaVersion,
			SafeModeReason: core.DB.MigrationError,
		},
		Engine: dto.EngineStatusDTO{
			LevelPolicy:    progression.PolicyName(engine.Policy),
			Timezone:       tz,
			LevelUpFlashMs: cfg.Engine.LevelUpFlashMs,
			CatalogVersion: catalog.Version,
			OpenSessions:   core.Services.Progress.OpenSessions(),
			PendingFlags:   core.Services.Progress.PendingFlagClears(),
		},
		Gateway: dto.GatewayStatusDTO{
			WriterID:    core.Gateway.WriterID(),
			Watching:    watching,
			Subscribers: core.Hub.Subscribers(),
			Replaced:    core.Hub.Replaced(),
		},
	}
}
