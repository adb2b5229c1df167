package server

import (
	"net/http"
	"time"

	"github.com/buckneer/beastie-club/errors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"
)

// PrizeHandler serves redemption lookups and the QR artifact the prize
// modal displays at the counter.
type PrizeHandler struct {
	app    *App
	logger zerolog.Logger
}

// NewPrizeHandler creates a new prize handler
func NewPrizeHandler(app *App) *PrizeHandler {
	return &PrizeHandler{
		app:    app,
		logger: app.logger.With().Str("handler", "prize").Logger(),
	}
}

// PrizeResponse is the redemption status payload
type PrizeResponse struct {
	Code          string    `json:"uniqueCode"`
	PrizeLabel    string    `json:"prizeLabel"`
	IssuedAt      time.Time `json:"issuedAt"`
	Redeemed      bool      `json:"redeemed"`
	RedemptionURL string    `json:"redemptionUrl"`
}

// GetPrize godoc
// @Summary      Look up a prize redemption
// @Description  Returns the prize and redeemed flag for a redemption code
// @Tags         prizes
// @Produce      json
// @Param        code  path  string  true  "Redemption code"
// @Success      200  {object}  BaseResponse{data=PrizeResponse}
// @Failure      404  {object}  ErrorResponse
// @Router       /prizes/{code} [get]
func (h *PrizeHandler) GetPrize(c *gin.Context) {
	code := c.Param("code")

	redemption, err := h.app.spinService.RedemptionStatus(c.Request.Context(), code)
	if err != nil {
		if errors.GetCode(err) != errors.ErrRedemptionNotFound {
			h.logger.Error().Err(err).Str("code", code).Msg("Failed to look up redemption")
		}
		HandleAppError(c, err)
		return
	}

	OK(c, PrizeResponse{
		Code:          redemption.Code,
		PrizeLabel:    redemption.PrizeLabel,
		IssuedAt:      redemption.IssuedAt,
		Redeemed:      redemption.Redeemed,
		RedemptionURL: h.app.RedemptionURL(redemption.Code),
	})
}

// GetPrizeQR godoc
// @Summary      Prize redemption QR code
// @Description  Renders the redemption URL for a code as a PNG QR image
// @Tags         prizes
// @Produce      png
// @Param        code  path  string  true  "Redemption code"
// @Success      200  {file}  png
// @Failure      404  {object}  ErrorResponse
// @Router       /prizes/{code}/qr [get]
func (h *PrizeHandler) GetPrizeQR(c *gin.Context) {
	code := c.Param("code")

	redemption, err := h.app.spinService.RedemptionStatus(c.Request.Context(), code)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	png, err := qrcode.Encode(h.app.RedemptionURL(redemption.Code), qrcode.Medium, 256)
	if err != nil {
		h.logger.Error().Err(err).Str("code", code).Msg("Failed to encode QR")
		InternalError(c, errors.Wrap(err, errors.ErrInternalServerError, "failed to render QR code"))
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}
