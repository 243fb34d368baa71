package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/lifesignal/gateway"
	"github.com/cppla/lifesignal/services"
	"github.com/cppla/lifesignal/utils"
)

// InboundHandler applies parsed webhook events to check-ins.
type InboundHandler interface {
	HandleSMS(ctx context.Context, ev services.SMSReceived) (services.InboundResult, error)
	HandleVoiceDigits(ctx context.Context, ev services.VoiceDigits) (services.InboundResult, error)
}

// TwilioController receives SMS and voice webhooks.
type TwilioController struct {
	inbound          InboundHandler
	voiceCallbackURL string
	logger           *zap.Logger
}

// NewTwilioController creates a controller. voiceCallbackURL is the Gather action for calls.
func NewTwilioController(inbound InboundHandler, voiceCallbackURL string, logger *zap.Logger) *TwilioController {
	return &TwilioController{inbound: inbound, voiceCallbackURL: voiceCallbackURL, logger: logger}
}

// SMS handles an inbound text message.
func (t *TwilioController) SMS(ctx *gin.Context) {
	if err := ctx.Request.ParseForm(); err != nil {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, "invalid form body")
		return
	}
	ev, err := services.ParseSMSWebhook(ctx.Request.PostForm)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, err.Error())
		return
	}
	result, err := t.inbound.HandleSMS(ctx.Request.Context(), ev)
	if err != nil {
		t.logger.Error("handle inbound sms failed", zap.String("message_sid", ev.MessageSid), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, utils.CodeInternal, "failed to process message")
		return
	}
	utils.Success(ctx, gin.H{"result": result})
}

// Voice answers a check-in call. Without digits it plays the menu; with digits it records
// the answer and hangs up. The provider always gets TwiML back.
func (t *TwilioController) Voice(ctx *gin.Context) {
	if err := ctx.Request.ParseForm(); err != nil {
		t.goodbye(ctx)
		return
	}
	ev, err := services.ParseVoiceWebhook(ctx.Request.PostForm)
	if err != nil {
		t.logger.Warn("unparseable voice webhook", zap.Error(err))
		t.goodbye(ctx)
		return
	}

	switch e := ev.(type) {
	case services.VoicePrompt:
		body, err := gateway.VoiceMenuTwiML(t.voiceCallbackURL)
		if err != nil {
			t.logger.Error("render voice menu failed", zap.Error(err))
			t.goodbye(ctx)
			return
		}
		ctx.Data(http.StatusOK, "text/xml; charset=utf-8", body)
	case services.VoiceDigits:
		if _, err := t.inbound.HandleVoiceDigits(ctx.Request.Context(), e); err != nil {
			t.logger.Error("handle voice digits failed", zap.String("call_sid", e.CallSid), zap.Error(err))
		}
		t.goodbye(ctx)
	default:
		t.goodbye(ctx)
	}
}

func (t *TwilioController) goodbye(ctx *gin.Context) {
	body, err := gateway.VoiceGoodbyeTwiML()
	if err != nil {
		ctx.Status(http.StatusInternalServerError)
		return
	}
	ctx.Data(http.StatusOK, "text/xml; charset=utf-8", body)
}
