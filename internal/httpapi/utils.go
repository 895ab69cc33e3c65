package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/yuqie6/WrestleQuest/internal/catalog"
)

const maxBodyBytes = 1 << 20

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

var validate = validator.New()

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error    apiError `json:"error"`
	Progress any      `json:"progress,omitempty"` // 持久化失败/撤销不可用时附带当前进度
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: msg}})
}

// readJSON 解码并校验请求体
func readJSON(w http.ResponseWriter, r *http.Request, out any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("请求体格式错误: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("请求参数不合法: %w", err)
	}
	return nil
}

// parseSkill 路径中的技能：索引、名称或 slug
func parseSkill(value string) (int, bool) {
	return catalog.ResolveSkill(value)
}

func parseLimit(value string) (int, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit 必须为正整数: %q", value)
	}
	return min(n, maxHistoryLimit), nil
}
