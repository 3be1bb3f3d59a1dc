package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ineyio/vidquota"
)

// Response messages. The frontend matches on these strings.
const (
	msgOK                = "success"
	msgQueried           = "查询成功"
	msgActivated         = "开通成功"
	msgGenerated         = "视频生成成功"
	msgScriptCreated     = "生成成功"
	msgMissingParams     = "参数不全"
	msgUnsupportedModel  = "不支持的视频模型"
	msgProviderTimeout   = "视频生成超时，请稍后重试"
	msgProviderFailure   = "视频服务暂不可用，请稍后重试"
	msgTextProviderError = "AI生成失败，请稍后重试"
	msgInternal          = "服务器内部错误"
	msgNotFound          = "接口不存在"
)

// envelope is the body of every API response. HTTP status equals Code.
type envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(envelope{Code: code, Msg: msg, Data: data})
}

// errorResponse maps err onto a status, a user-facing message and optional data.
// Internal details never reach the message.
func errorResponse(err error) (int, string, any) {
	switch {
	case errors.Is(err, vidquota.ErrUnsupportedModel):
		return http.StatusBadRequest, msgUnsupportedModel, nil
	case errors.Is(err, vidquota.ErrInvalidRequest):
		return http.StatusBadRequest, msgMissingParams, nil
	case errors.Is(err, vidquota.ErrQuotaExhausted):
		var ge *vidquota.GenerationError
		if errors.As(err, &ge) && ge.Quota != nil {
			return http.StatusTooManyRequests, quotaMessage(ge.Model, ge.Quota), ge.Quota
		}
		return http.StatusTooManyRequests, quotaMessage("", nil), nil
	case errors.Is(err, vidquota.ErrProviderTimeout):
		return http.StatusGatewayTimeout, msgProviderTimeout, nil
	case errors.Is(err, vidquota.ErrProviderUnavailable), errors.Is(err, vidquota.ErrBadResponse):
		return http.StatusBadGateway, msgProviderFailure, nil
	default:
		return http.StatusInternalServerError, msgInternal, nil
	}
}

func quotaMessage(model vidquota.Model, snap *vidquota.QuotaSnapshot) string {
	if snap == nil || model == "" {
		return "今日生成次数已用完"
	}
	mq := snap.Models[model]
	if snap.IsMember {
		return fmt.Sprintf("今日%s模型生成次数已用完（%d/%d），请明天再试", model, mq.Used, mq.Limit)
	}
	return fmt.Sprintf("今日%s模型免费次数已用完（%d/%d），开通会员可获得更多次数", model, mq.Used, mq.Limit)
}
