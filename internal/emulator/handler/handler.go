package handler

import (
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Alwanly/cloud-sdk-go/internal/config"
	"github.com/Alwanly/cloud-sdk-go/internal/emulator/dto"
	"github.com/Alwanly/cloud-sdk-go/internal/emulator/repository"
	"github.com/Alwanly/cloud-sdk-go/internal/emulator/usecase"
	"github.com/Alwanly/cloud-sdk-go/pkg/deps"
	"github.com/Alwanly/cloud-sdk-go/pkg/logger"
	"github.com/Alwanly/cloud-sdk-go/pkg/poll"
	"github.com/Alwanly/cloud-sdk-go/pkg/validator"
	"github.com/Alwanly/cloud-sdk-go/pkg/wrapper"
)

const (
	headerLeaseAction   = "x-ms-lease-action"
	headerLeaseID       = "x-ms-lease-id"
	headerProposedLease = "x-ms-proposed-lease-id"
	headerLeaseDuration = "x-ms-lease-duration"
	headerLeaseTime     = "x-ms-lease-time"
	headerLeaseState    = "x-ms-lease-state"
)

type Handler struct {
	Logger  *logger.CanonicalLogger
	UseCase *usecase.UseCase
	Config  *config.EmulatorConfig
}

func NewHandler(d deps.App, cfg *config.EmulatorConfig) *Handler {
	repo := repository.NewRepository(d.Database)

	uc := usecase.NewUseCase(usecase.UseCase{
		Repo:   repo,
		Config: cfg,
		Token:  d.Middleware.Token,
		Logger: d.Logger,
	})

	h := &Handler{
		Logger:  d.Logger,
		UseCase: uc,
		Config:  cfg,
	}

	// Health check endpoint (no auth required)
	d.Fiber.Get("/health", h.health)

	// Token endpoint follows the v2.0 client-credentials path shape
	d.Fiber.Post("/:tenant/oauth2/v2.0/token", h.token)

	bearer := d.Middleware.BearerAuth()

	// Configuration settings
	d.Fiber.Get("/kv", bearer, h.listSettings)
	d.Fiber.Post("/kv/$import", bearer, h.startImport)
	d.Fiber.Get("/kv/:key", bearer, h.getSetting)
	d.Fiber.Put("/kv/:key", bearer, h.setSetting)
	d.Fiber.Delete("/kv/:key", bearer, h.deleteSetting)

	// Blob leases
	d.Fiber.Put("/containers/:container/blobs/:blob", bearer, h.lease)

	// Long-running operations
	d.Fiber.Get("/operations/:id", bearer, h.getOperation)

	// Admin endpoints to lock and unlock settings (basic auth)
	admin := d.Fiber.Group("/admin", d.Middleware.BasicAuth())
	admin.Put("/kv/:key/lock", h.lockSetting)
	admin.Delete("/kv/:key/lock", h.unlockSetting)

	if d.Runner != nil {
		d.Runner.Register("operation-janitor", uc.PurgeFinishedOperations,
			poll.TaskConfig{Interval: 10 * time.Minute})
	}

	return h
}

// health godoc
// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200 {object} map[string]string "Service is healthy"
// @Router       /health [get]
func (h *Handler) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy", "service": "emulator"})
}

// token godoc
// @Summary      Issue an access token
// @Description  OAuth2 client-credentials grant. Returns a bearer token for the configured clients.
// @Tags         auth
// @Accept       x-www-form-urlencoded
// @Produce      json
// @Param        tenant path string true "Tenant ID"
// @Param        grant_type formData string true "Must be client_credentials"
// @Param        client_id formData string true "Client ID"
// @Param        client_secret formData string true "Client secret"
// @Param        scope formData string false "Requested scopes"
// @Success      200 {object} dto.TokenResponse "Access token"
// @Failure      400 {object} dto.OAuthError "Malformed request"
// @Failure      401 {object} dto.OAuthError "Unknown client"
// @Router       /{tenant}/oauth2/v2.0/token [post]
func (h *Handler) token(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "issue_token"))

	req := new(dto.TokenRequest)
	if err := c.BodyParser(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(dto.OAuthError{
			Error: "invalid_request", ErrorDescription: "malformed form body",
		})
	}
	if err := validator.ValidateStruct(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(dto.OAuthError{
			Error: "invalid_request", ErrorDescription: err.Error(),
		})
	}

	res := h.UseCase.IssueToken(c.UserContext(), req)
	return c.Status(res.Code).JSON(res.Data)
}

// getSetting godoc
// @Summary      Get a configuration setting
// @Description  Returns the setting for a key and optional label. Supports If-None-Match for cheap change detection.
// @Tags         settings
// @Produce      json
// @Param        key path string true "Setting key"
// @Param        label query string false "Setting label"
// @Param        If-None-Match header string false "ETag from a previous read"
// @Success      200 {object} dto.SettingResponse "Current setting"
// @Success      304 "Setting unchanged"
// @Failure      404 {object} wrapper.ErrorEnvelope "Setting not found"
// @Router       /kv/{key} [get]
// @Security     BearerAuth
func (h *Handler) getSetting(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "get_setting"))

	key, err := urlDecodedParam(c, "key")
	if err != nil {
		return badParam(c, "key")
	}
	res := h.UseCase.GetSetting(c.UserContext(), key, c.Query("label"), c.Get("If-None-Match"))

	if res.Code == fiber.StatusNotModified {
		return c.SendStatus(fiber.StatusNotModified)
	}
	setETagHeader(c, res)
	return c.Status(res.Code).JSON(res.Data)
}

// setSetting godoc
// @Summary      Create or update a configuration setting
// @Description  Upserts the setting. If-Match enforces optimistic concurrency; If-None-Match "*" makes the write create-only.
// @Tags         settings
// @Accept       json
// @Produce      json
// @Param        key path string true "Setting key"
// @Param        label query string false "Setting label"
// @Param        If-Match header string false "Expected ETag"
// @Param        If-None-Match header string false "Set to * to require creation"
// @Param        request body dto.SetSettingRequest true "Setting content"
// @Success      200 {object} dto.SettingResponse "Stored setting"
// @Failure      400 {object} wrapper.ErrorEnvelope "Invalid body"
// @Failure      409 {object} wrapper.ErrorEnvelope "Setting is read-only"
// @Failure      412 {object} wrapper.ErrorEnvelope "ETag precondition failed"
// @Router       /kv/{key} [put]
// @Security     BearerAuth
func (h *Handler) setSetting(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "set_setting"))

	key, err := urlDecodedParam(c, "key")
	if err != nil {
		return badParam(c, "key")
	}

	req := new(dto.SetSettingRequest)
	if err := c.BodyParser(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		res := wrapper.ResponseError(fiber.StatusBadRequest, "InvalidRequestBody", "invalid request body")
		return c.Status(res.Code).JSON(res.Data)
	}
	if err := validator.ValidateStruct(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		res := wrapper.ResponseError(fiber.StatusBadRequest, "InvalidRequestBody", err.Error())
		return c.Status(res.Code).JSON(res.Data)
	}

	res := h.UseCase.SetSetting(c.UserContext(), key, c.Query("label"), req,
		c.Get("If-Match"), c.Get("If-None-Match"))
	setETagHeader(c, res)
	return c.Status(res.Code).JSON(res.Data)
}

// deleteSetting godoc
// @Summary      Delete a configuration setting
// @Tags         settings
// @Produce      json
// @Param        key path string true "Setting key"
// @Param        label query string false "Setting label"
// @Param        If-Match header string false "Expected ETag"
// @Success      200 {object} dto.SettingResponse "Deleted setting"
// @Failure      404 {object} wrapper.ErrorEnvelope "Setting not found"
// @Failure      412 {object} wrapper.ErrorEnvelope "ETag precondition failed"
// @Router       /kv/{key} [delete]
// @Security     BearerAuth
func (h *Handler) deleteSetting(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "delete_setting"))

	key, err := urlDecodedParam(c, "key")
	if err != nil {
		return badParam(c, "key")
	}
	res := h.UseCase.DeleteSetting(c.UserContext(), key, c.Query("label"), c.Get("If-Match"))
	return c.Status(res.Code).JSON(res.Data)
}

// listSettings godoc
// @Summary      List configuration settings
// @Description  Pages through settings. Filters ending in * match by prefix. Follow nextLink for further pages.
// @Tags         settings
// @Produce      json
// @Param        key query string false "Key filter"
// @Param        label query string false "Label filter"
// @Param        $top query int false "Page size"
// @Param        $skip query int false "Rows to skip"
// @Success      200 {object} dto.ListSettingsResponse "One page of settings"
// @Router       /kv [get]
// @Security     BearerAuth
func (h *Handler) listSettings(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "list_settings"))

	top, _ := strconv.Atoi(c.Query("$top"))
	skip, _ := strconv.Atoi(c.Query("$skip"))
	res := h.UseCase.ListSettings(c.UserContext(), c.Query("key"), c.Query("label"), top, skip)
	return c.Status(res.Code).JSON(res.Data)
}

// lease godoc
// @Summary      Manage the lease on a blob
// @Description  Acquire, renew, release, or break the lease guarding a blob. The action and lease ids travel in x-ms-lease-* headers.
// @Tags         leases
// @Produce      json
// @Param        container path string true "Container name"
// @Param        blob path string true "Blob name"
// @Param        comp query string true "Must be lease"
// @Param        x-ms-lease-action header string true "acquire, renew, release, or break"
// @Param        x-ms-lease-id header string false "Current lease id (renew, release)"
// @Param        x-ms-proposed-lease-id header string false "Proposed lease id (acquire)"
// @Param        x-ms-lease-duration header int false "Lease duration in seconds, -1 for infinite"
// @Success      200 {object} dto.LeaseResponse "Lease renewed or released"
// @Success      201 {object} dto.LeaseResponse "Lease acquired"
// @Success      202 {object} dto.LeaseResponse "Lease broken"
// @Failure      409 {object} wrapper.ErrorEnvelope "Lease conflict"
// @Router       /containers/{container}/blobs/{blob} [put]
// @Security     BearerAuth
func (h *Handler) lease(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "lease"))

	if c.Query("comp") != "lease" {
		res := wrapper.ResponseError(fiber.StatusBadRequest, "InvalidQueryParameterValue", "comp must be lease")
		return c.Status(res.Code).JSON(res.Data)
	}

	req := &dto.LeaseRequest{
		Action:          c.Get(headerLeaseAction),
		LeaseID:         c.Get(headerLeaseID),
		ProposedLeaseID: c.Get(headerProposedLease),
	}
	if v := c.Get(headerLeaseDuration); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			res := wrapper.ResponseError(fiber.StatusBadRequest, "InvalidHeaderValue", "invalid lease duration")
			return c.Status(res.Code).JSON(res.Data)
		}
		req.Duration = d
	}
	if err := validator.ValidateStruct(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		res := wrapper.ResponseError(fiber.StatusBadRequest, "InvalidHeaderValue", err.Error())
		return c.Status(res.Code).JSON(res.Data)
	}

	res := h.UseCase.Lease(c.UserContext(), c.Params("container"), c.Params("blob"), req)
	if lease, ok := res.Data.(dto.LeaseResponse); ok {
		if lease.LeaseID != "" {
			c.Set(headerLeaseID, lease.LeaseID)
		}
		c.Set(headerLeaseState, lease.State)
		if res.Code == fiber.StatusAccepted {
			c.Set(headerLeaseTime, strconv.Itoa(lease.RemainingSeconds))
		}
	}
	return c.Status(res.Code).JSON(res.Data)
}

// startImport godoc
// @Summary      Bulk import settings
// @Description  Starts a long-running import. Poll the Operation-Location header until the operation reaches a terminal status.
// @Tags         operations
// @Accept       json
// @Produce      json
// @Param        request body dto.ImportRequest true "Settings to import"
// @Success      202 {object} dto.OperationResponse "Operation accepted"
// @Failure      400 {object} wrapper.ErrorEnvelope "Invalid body"
// @Router       /kv/$import [post]
// @Security     BearerAuth
func (h *Handler) startImport(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "start_import"))

	req := new(dto.ImportRequest)
	if err := c.BodyParser(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		res := wrapper.ResponseError(fiber.StatusBadRequest, "InvalidRequestBody", "invalid request body")
		return c.Status(res.Code).JSON(res.Data)
	}
	if err := validator.ValidateStruct(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		res := wrapper.ResponseError(fiber.StatusBadRequest, "InvalidRequestBody", err.Error())
		return c.Status(res.Code).JSON(res.Data)
	}

	res := h.UseCase.StartImport(c.UserContext(), req)
	if op, ok := res.Data.(dto.OperationResponse); ok {
		c.Set("Operation-Location", "/operations/"+op.ID)
	}
	return c.Status(res.Code).JSON(res.Data)
}

// getOperation godoc
// @Summary      Get a long-running operation
// @Tags         operations
// @Produce      json
// @Param        id path string true "Operation ID"
// @Success      200 {object} dto.OperationResponse "Operation status"
// @Failure      404 {object} wrapper.ErrorEnvelope "Operation not found"
// @Router       /operations/{id} [get]
// @Security     BearerAuth
func (h *Handler) getOperation(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "get_operation"))
	res := h.UseCase.GetOperation(c.UserContext(), c.Params("id"))
	return c.Status(res.Code).JSON(res.Data)
}

// lockSetting godoc
// @Summary      Make a setting read-only
// @Tags         admin
// @Produce      json
// @Param        key path string true "Setting key"
// @Param        label query string false "Setting label"
// @Success      200 {object} dto.SettingResponse "Locked setting"
// @Failure      404 {object} wrapper.ErrorEnvelope "Setting not found"
// @Router       /admin/kv/{key}/lock [put]
// @Security     BasicAuth
func (h *Handler) lockSetting(c *fiber.Ctx) error {
	return h.setLock(c, true)
}

// unlockSetting godoc
// @Summary      Make a setting writable again
// @Tags         admin
// @Produce      json
// @Param        key path string true "Setting key"
// @Param        label query string false "Setting label"
// @Success      200 {object} dto.SettingResponse "Unlocked setting"
// @Failure      404 {object} wrapper.ErrorEnvelope "Setting not found"
// @Router       /admin/kv/{key}/lock [delete]
// @Security     BasicAuth
func (h *Handler) unlockSetting(c *fiber.Ctx) error {
	return h.setLock(c, false)
}

func (h *Handler) setLock(c *fiber.Ctx, locked bool) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "lock_setting"))

	key, err := urlDecodedParam(c, "key")
	if err != nil {
		return badParam(c, "key")
	}
	res := h.UseCase.SetSettingLock(c.UserContext(), key, c.Query("label"), locked)
	return c.Status(res.Code).JSON(res.Data)
}

func setETagHeader(c *fiber.Ctx, res wrapper.JSONResult) {
	if data, ok := res.Data.(dto.SettingResponse); ok && data.ETag != "" {
		c.Set("ETag", data.ETag)
	}
}

func urlDecodedParam(c *fiber.Ctx, name string) (string, error) {
	return url.PathUnescape(c.Params(name))
}

func badParam(c *fiber.Ctx, name string) error {
	res := wrapper.ResponseError(fiber.StatusBadRequest, "InvalidRequestParameter", "invalid "+name)
	return c.Status(res.Code).JSON(res.Data)
}
