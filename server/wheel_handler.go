package server

import (
	"time"

	"github.com/buckneer/beastie-club/auth"
	"github.com/buckneer/beastie-club/errors"
	"github.com/buckneer/beastie-club/wheel"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// WheelHandler handles HTTP requests for the prize wheel
//
// Flow: HTTP Request -> wheelRoutes -> WheelHandler -> SpinService
//
// Responsibilities:
// - Resolve caller identity (account token or device header)
// - Run the automatic guest transfer before account spins
// - Call SpinService for business logic
// - Format and return HTTP responses
type WheelHandler struct {
	app    *App
	logger zerolog.Logger
}

// NewWheelHandler creates a new wheel handler
func NewWheelHandler(app *App) *WheelHandler {
	return &WheelHandler{
		app:    app,
		logger: app.logger.With().Str("handler", "wheel").Logger(),
	}
}

// extractIdentity resolves the caller identity from the request context
func (h *WheelHandler) extractIdentity(c *gin.Context) (wheel.Identity, error) {
	identity, ok := auth.GetIdentity(c)
	if !ok {
		return wheel.Identity{}, errors.New(errors.ErrIdentityRequired, "authentication token or X-Device-ID header required")
	}
	return identity, nil
}

// EligibilityResponse is the eligibility payload
type EligibilityResponse struct {
	Eligible         bool       `json:"eligible"`
	RemainingSeconds int64      `json:"remainingSeconds,omitempty"`
	RemainingHours   int64      `json:"remainingHours,omitempty"`
	RemainingMinutes int64      `json:"remainingMinutes,omitempty"`
	Message          string     `json:"message,omitempty"`
	NextSpinAt       *time.Time `json:"nextSpinAt,omitempty"`
}

func eligibilityResponse(e wheel.Eligibility) EligibilityResponse {
	resp := EligibilityResponse{Eligible: e.Eligible}
	if !e.Eligible {
		resp.RemainingSeconds = int64(e.Remaining.Seconds())
		resp.RemainingHours = int64(e.WholeHours())
		resp.RemainingMinutes = int64(e.WholeMinutes())
		resp.Message = e.WaitMessage()
		next := e.NextSpinAt
		resp.NextSpinAt = &next
	}
	return resp
}

// SpinResponse is the spin outcome payload
type SpinResponse struct {
	PrizeLabel     string  `json:"prizeLabel"`
	Angle          float64 `json:"angle"`
	TargetRotation float64 `json:"targetRotation"`
	RedemptionCode string  `json:"redemptionCode,omitempty"`
	RedemptionURL  string  `json:"redemptionUrl,omitempty"`
}

// TransferResponse is the transfer outcome payload
type TransferResponse struct {
	Transferred    bool   `json:"transferred"`
	RedemptionCode string `json:"redemptionCode,omitempty"`
	PrizeLabel     string `json:"prizeLabel,omitempty"`
}

// GetEligibility godoc
// @Summary      Check spin eligibility
// @Description  Evaluates the 72 hour cooldown for the calling identity
// @Tags         wheel
// @Produce      json
// @Success      200  {object}  BaseResponse{data=EligibilityResponse}
// @Failure      401  {object}  ErrorResponse
// @Failure      503  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /wheel/eligibility [get]
func (h *WheelHandler) GetEligibility(c *gin.Context) {
	identity, err := h.extractIdentity(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	eligibility, err := h.app.spinService.Eligibility(c.Request.Context(), identity)
	if err != nil {
		h.logger.Error().Err(err).Str("identity", identity.String()).Msg("Failed to evaluate eligibility")
		HandleAppError(c, err)
		return
	}

	OK(c, eligibilityResponse(eligibility))
}

// Spin godoc
// @Summary      Spin the prize wheel
// @Description  Resolves a spin for the calling identity. A signed-in caller
// @Description  that also sends X-Device-ID has its guest record transferred first.
// @Tags         wheel
// @Produce      json
// @Success      200  {object}  BaseResponse{data=SpinResponse}
// @Failure      401  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Failure      429  {object}  ErrorResponse
// @Failure      503  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /wheel/spin [post]
func (h *WheelHandler) Spin(c *gin.Context) {
	ctx := c.Request.Context()

	identity, err := h.extractIdentity(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	// The guest record must move before the account spins, otherwise the
	// spin could consume an eligibility the transfer is about to revoke.
	if identity.IsAccount() {
		if deviceID, ok := auth.GetDeviceID(c); ok {
			if _, err := h.app.spinService.Transfer(ctx, deviceID, identity.AccountID); err != nil {
				h.logger.Error().Err(err).
					Str("device_id", deviceID).
					Str("account_id", identity.AccountID).
					Msg("Pre-spin transfer failed")
				HandleAppError(c, err)
				return
			}
		}
	}

	result, err := h.app.spinService.Spin(ctx, identity)
	if err != nil {
		if errors.GetCode(err) != errors.ErrNotEligible {
			h.logger.Error().Err(err).Str("identity", identity.String()).Msg("Spin failed")
		}
		HandleAppError(c, err)
		return
	}

	h.app.eligibilityService.Invalidate(ctx, identity)

	resp := SpinResponse{
		PrizeLabel: result.Slot.Label,
		Angle:      result.Angle,
		// Client animates five full turns and settles on the slot center.
		TargetRotation: 5*360 + result.Slot.AngleCenter,
	}
	if result.Redemption != nil {
		resp.RedemptionCode = result.Redemption.Code
		resp.RedemptionURL = h.app.RedemptionURL(result.Redemption.Code)
	}

	OK(c, resp)
}

// Transfer godoc
// @Summary      Transfer guest record to the signed-in account
// @Description  Moves the device's guest spin record onto the account. A
// @Description  pending guest prize becomes a redemption code. Idempotent.
// @Tags         wheel
// @Produce      json
// @Success      200  {object}  BaseResponse{data=TransferResponse}
// @Failure      401  {object}  ErrorResponse
// @Failure      502  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /wheel/transfer [post]
func (h *WheelHandler) Transfer(c *gin.Context) {
	identity, err := h.extractIdentity(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if !identity.IsAccount() {
		HandleAppError(c, errors.New(errors.ErrUnauthorized, "transfer requires a signed-in account"))
		return
	}

	deviceID, ok := auth.GetDeviceID(c)
	if !ok {
		HandleAppError(c, errors.New(errors.ErrInvalidRequest, "X-Device-ID header is required"))
		return
	}

	result, err := h.app.spinService.Transfer(c.Request.Context(), deviceID, identity.AccountID)
	if err != nil {
		h.logger.Error().Err(err).
			Str("device_id", deviceID).
			Str("account_id", identity.AccountID).
			Msg("Transfer failed")
		HandleAppError(c, err)
		return
	}

	h.app.eligibilityService.Invalidate(c.Request.Context(), identity)

	resp := TransferResponse{Transferred: result.Transferred}
	if result.Redemption != nil {
		resp.RedemptionCode = result.Redemption.Code
		resp.PrizeLabel = result.Redemption.PrizeLabel
	}

	OK(c, resp)
}
