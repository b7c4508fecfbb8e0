package controller

import (
	"context"

	"ai-interview-be/internal/dto"
	"ai-interview-be/internal/pkg/logger"
	"ai-interview-be/internal/pkg/serverutils"
	"ai-interview-be/internal/service"
	internalWS "ai-interview-be/internal/websocket"
	"ai-interview-be/pkg/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type IInterviewController interface {
	RegisterRoutes(r fiber.Router)
	RegisterWebsocket(app *fiber.App)
	Start(ctx *fiber.Ctx) error
	Status(ctx *fiber.Ctx) error
	AttachFile(ctx *fiber.Ctx) error
}

type interviewController struct {
	service  service.IInterviewService
	sessions store.SessionStore
	hub      *internalWS.Hub
	router   internalWS.TurnRouter
	logger   logger.ILogger
}

func NewInterviewController(
	svc service.IInterviewService,
	sessions store.SessionStore,
	hub *internalWS.Hub,
	router internalWS.TurnRouter,
	log logger.ILogger,
) IInterviewController {
	return &interviewController{
		service:  svc,
		sessions: sessions,
		hub:      hub,
		router:   router,
		logger:   log,
	}
}

func (c *interviewController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/interview/v1")
	h.Post("/sessions", serverutils.SessionTokenMiddleware, c.Start)
	h.Get("/sessions/:token", c.Status)
	h.Post("/sessions/:token/files", c.AttachFile)
}

// RegisterWebsocket mounts the live interview channel outside the REST
// group; the session token in the path is the connect-time credential.
func (c *interviewController) RegisterWebsocket(app *fiber.App) {
	app.Get("/ws/interview/:token", c.serveWs)
}

func (c *interviewController) Start(ctx *fiber.Ctx) error {
	var req dto.StartSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.NewApiError(fiber.StatusBadRequest, "Malformed request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.StartSession(ctx.Context(), &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Session created", res))
}

func (c *interviewController) Status(ctx *fiber.Ctx) error {
	res, err := c.service.SessionStatus(ctx.Context(), ctx.Params("token"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session status", res))
}

func (c *interviewController) AttachFile(ctx *fiber.Ctx) error {
	var req dto.AttachFileRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.NewApiError(fiber.StatusBadRequest, "Malformed request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.service.AttachFile(ctx.Context(), ctx.Params("token"), &req); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("File attached", nil))
}

func (c *interviewController) serveWs(ctx *fiber.Ctx) error {
	token := ctx.Params("token")
	if token == "" {
		return ctx.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse("Missing session token"))
	}

	// The token is only valid while its session record lives. Completed
	// sessions stay readable through the grace window but refuse new
	// connections.
	state, found, err := c.sessions.Get(ctx.Context(), token)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse("Internal server error"))
	}
	if !found {
		return ctx.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse("Session not found or expired"))
	}
	if state.Status == store.StatusCompleted {
		return ctx.Status(fiber.StatusGone).JSON(serverutils.ErrorResponse("This interview has already ended"))
	}

	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}

	return websocket.New(func(conn *websocket.Conn) {
		c.logger.Info("InterviewController", "Interview channel open", map[string]interface{}{"token": token})

		onReady := func() {
			em := hubEmitter{hub: c.hub, token: token}
			if err := c.service.OpeningTurn(context.Background(), token, em); err != nil {
				c.logger.Error("InterviewController", "Opening turn failed", map[string]interface{}{
					"token": token,
					"error": err.Error(),
				})
			}
		}

		internalWS.ServeWs(c.hub, conn, token, c.router, c.logger, onReady)
		c.logger.Info("InterviewController", "Interview channel closed", map[string]interface{}{"token": token})
	})(ctx)
}

type hubEmitter struct {
	hub   *internalWS.Hub
	token string
}

func (e hubEmitter) Emit(event string, payload interface{}) error {
	return e.hub.Emit(e.token, event, payload)
}
