package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/raine/tix-seo-studio/internal/llm"
	"github.com/raine/tix-seo-studio/internal/media"
)

// User-facing alerts.
const (
	alertGenerationFailed = "خطأ في توليد المحتوى. يرجى المحاولة مرة أخرى."
	alertMissingInput     = "يرجى إدخال اسم المنتج وإرفاق صورة."
	alertBusy             = "يتم تنفيذ طلب آخر حاليًا. يرجى الانتظار."
	alertThrottled        = "عدد كبير من الطلبات. يرجى المحاولة بعد قليل."
	alertHistoryFailed    = "تعذر تحديث السجل."
	alertStudioFailed     = "Failed to generate image. Please try again."
	alertStudioMissing    = "Please upload a product image first."
	alertStudioBusy       = "Another request is in progress. Please wait."
)

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, media.ErrRead), errors.Is(err, llm.ErrEmptyName), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrBusy):
		return http.StatusConflict
	case errors.Is(err, ErrThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, llm.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, llm.ErrMalformedResponse), errors.Is(err, llm.ErrImageGenerationFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

// generationAlert picks the Arabic alert shown for a failed generation.
func generationAlert(err error) string {
	switch {
	case errors.Is(err, ErrBusy):
		return alertBusy
	case errors.Is(err, ErrThrottled):
		return alertThrottled
	case errors.Is(err, llm.ErrEmptyName):
		return alertMissingInput
	default:
		return alertGenerationFailed
	}
}

// studioAlert picks the English alert shown for a failed studio request.
func studioAlert(err error) string {
	switch {
	case errors.Is(err, ErrBusy), errors.Is(err, ErrThrottled):
		return alertStudioBusy
	default:
		return alertStudioFailed
	}
}
