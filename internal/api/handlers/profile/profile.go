package profile

import (
	"net/http"

	profileService "safebite-api/internal/core/profile"
	"safebite-api/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// UpdateRequest 輪廓更新請求，整份覆寫
type UpdateRequest struct {
	DeviceID  string   `json:"device_id" binding:"required"`
	Name      string   `json:"name"`
	Allergies []string `json:"allergies"`
	AvoidList []string `json:"avoid_list"`
}

// Handler 使用者輪廓處理器
type Handler struct {
	profiles *profileService.Service
}

// NewHandler 創建處理器
func NewHandler(profiles *profileService.Service) *Handler {
	return &Handler{profiles: profiles}
}

// HandleGet 處理 GET /users/:deviceId 輪廓查詢
func (h *Handler) HandleGet(c *gin.Context) {
	deviceID := c.Param("deviceId")

	p, err := h.profiles.FindByDeviceID(c.Request.Context(), deviceID)
	if err != nil {
		common.LogError("輪廓查詢失敗", zap.Error(err))
		common.RespondError(c, err)
		return
	}
	if p == nil {
		common.RespondError(c, common.ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"profile": p,
	})
}

// HandleUpdate 處理 PUT /users/update 輪廓建立或覆寫
func (h *Handler) HandleUpdate(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.LogWarn("輪廓更新請求格式無效", zap.Error(err))
		common.RespondError(c, common.ErrInvalidRequest.WithCause(err))
		return
	}

	p, err := h.profiles.Upsert(c.Request.Context(), &profileService.UserProfile{
		DeviceID:  req.DeviceID,
		Name:      req.Name,
		Allergies: datatypes.JSONSlice[string](req.Allergies),
		AvoidList: datatypes.JSONSlice[string](req.AvoidList),
	})
	if err != nil {
		common.LogError("輪廓更新失敗", zap.Error(err))
		common.RespondError(c, err)
		return
	}

	common.LogInfo("輪廓已更新",
		zap.Int("allergies", len(p.Allergies)),
		zap.Int("avoid_list", len(p.AvoidList)),
	)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"profile": p,
	})
}
