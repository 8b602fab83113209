package handler

import (
	"encoding/hex"
	"strings"

	"passkey-core/internal/handler/request"
	"passkey-core/internal/handler/response"
	"passkey-core/internal/model"
	"passkey-core/internal/service/session"
	"passkey-core/pkg/config"
	"passkey-core/pkg/errno"
	"passkey-core/pkg/validator"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type SessionHandler struct {
	ctl *session.Controller
}

func NewSessionHandler(ctl *session.Controller) *SessionHandler {
	return &SessionHandler{ctl: ctl}
}

// Create 创建转账会话
// @Summary 创建转账会话
// @Description 录入转账意图并创建 draft 状态的会话
// @Tags Session
// @Accept json
// @Produce json
// @Param request body request.CreateSessionRequest true "Transfer Intent"
// @Success 200 {object} response.Response
// @Router /api/v1/sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req request.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, errno.ErrInvalidAmount)
		return
	}

	var calldata []byte
	if req.Calldata != "" {
		calldata, err = hex.DecodeString(strings.TrimPrefix(req.Calldata, "0x"))
		if err != nil {
			response.Error(c, errno.ErrBind.WithMessage("calldata 不是合法的 hex"))
			return
		}
	}

	intent := model.TransferIntent{
		Recipient: req.Recipient,
		Amount:    amount,
		Currency:  req.Currency,
		Network:   req.Network,
		Calldata:  calldata,
	}
	if intent.Currency == "" {
		intent.Currency = "ETH"
	}
	if intent.Network == "" {
		intent.Network = config.Global.Chain.Network
	}

	gasOption := model.GasSponsored
	if req.GasOption != "" {
		gasOption = model.GasOption(req.GasOption)
	}

	sess, err := h.ctl.CreateSession(intent, gasOption)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, sess)
}

// Get 查询会话快照
// @Summary 查询会话
// @Tags Session
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Response
// @Router /api/v1/sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	sess, err := h.ctl.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, sess)
}

// Advance 推进会话状态机
// @Summary 推进会话
// @Description draft 进入 reviewing 并触发评估；reviewing 进入确认链路 (部署/授权/提交)
// @Tags Session
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Response
// @Router /api/v1/sessions/{id}/advance [post]
func (h *SessionHandler) Advance(c *gin.Context) {
	sess, err := h.ctl.Advance(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, sess)
}

// Abort 终止会话
// @Summary 终止会话
// @Description 任意非终态下都可以终止；重复终止是幂等的
// @Tags Session
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Response
// @Router /api/v1/sessions/{id}/abort [post]
func (h *SessionHandler) Abort(c *gin.Context) {
	sess, err := h.ctl.Abort(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, sess)
}

// SetGasOption 切换 gas 支付方式
// @Summary 切换 gas 支付方式
// @Tags Session
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body request.SetGasOptionRequest true "Gas Option"
// @Success 200 {object} response.Response
// @Router /api/v1/sessions/{id}/gas-option [put]
func (h *SessionHandler) SetGasOption(c *gin.Context) {
	var req request.SetGasOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}
	sess, err := h.ctl.SetGasOption(c.Param("id"), model.GasOption(req.GasOption))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, sess)
}

// SetVisibility 宿主可见性通知
// @Summary 上报可见性变化
// @Description 会话不可见时回收正在进行的授权，回到 reviewing 等待恢复
// @Tags Session
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body request.SetVisibilityRequest true "Visibility"
// @Success 200 {object} response.Response
// @Router /api/v1/sessions/{id}/visibility [put]
func (h *SessionHandler) SetVisibility(c *gin.Context) {
	var req request.SetVisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}
	sess, err := h.ctl.SetVisibility(c.Param("id"), *req.Visible)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, sess)
}
