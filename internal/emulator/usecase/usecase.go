package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Alwanly/cloud-sdk-go/internal/config"
	"github.com/Alwanly/cloud-sdk-go/internal/emulator/dto"
	"github.com/Alwanly/cloud-sdk-go/internal/emulator/repository"
	"github.com/Alwanly/cloud-sdk-go/internal/models"
	authentication "github.com/Alwanly/cloud-sdk-go/pkg/auth"
	"github.com/Alwanly/cloud-sdk-go/pkg/logger"
	"github.com/Alwanly/cloud-sdk-go/pkg/wrapper"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000

	// operationRetention is how long finished operations stay queryable.
	operationRetention = time.Hour
)

type UseCase struct {
	Repo   repository.IRepository
	Config *config.EmulatorConfig
	Token  authentication.ITokenService
	Logger *logger.CanonicalLogger
}

func NewUseCase(uc UseCase) *UseCase {
	return &uc
}

// IssueToken validates client credentials and mints a bearer token.
func (uc *UseCase) IssueToken(ctx context.Context, req *dto.TokenRequest) wrapper.JSONResult {
	for _, client := range uc.Config.Auth.Clients {
		if client.ClientID == req.ClientID && client.ClientSecret == req.ClientSecret {
			token, expiresIn, err := uc.Token.IssueToken(req.ClientID, req.Scope)
			if err != nil {
				uc.Logger.WithError(err).Error("failed to issue token")
				return wrapper.JSONResult{
					Code: http.StatusInternalServerError,
					Data: dto.OAuthError{Error: "server_error", ErrorDescription: "failed to issue token"},
				}
			}
			return wrapper.ResponseSuccess(http.StatusOK, dto.TokenResponse{
				AccessToken: token,
				TokenType:   "Bearer",
				ExpiresIn:   expiresIn,
			})
		}
	}

	logger.AddToContext(ctx, logger.String("client_id", req.ClientID))
	return wrapper.JSONResult{
		Code: http.StatusUnauthorized,
		Data: dto.OAuthError{Error: "invalid_client", ErrorDescription: "unknown client id or wrong secret"},
	}
}

// GetSetting serves one setting, honoring If-None-Match.
func (uc *UseCase) GetSetting(ctx context.Context, key, label, ifNoneMatch string) wrapper.JSONResult {
	setting, err := uc.Repo.GetSetting(ctx, key, label)
	if err == repository.ErrNotFound {
		return wrapper.ResponseError(http.StatusNotFound, "KeyNotFound", "setting does not exist")
	}
	if err != nil {
		uc.Logger.WithError(err).Error("failed to read setting")
		return wrapper.ResponseError(http.StatusInternalServerError, "InternalError", "failed to read setting")
	}

	if ifNoneMatch != "" && ifNoneMatch == setting.ETag {
		return wrapper.JSONResult{Code: http.StatusNotModified}
	}

	logger.AddToContext(ctx, logger.String(logger.FieldETag, setting.ETag))
	return wrapper.ResponseSuccess(http.StatusOK, toSettingResponse(setting))
}

// SetSetting upserts a setting with optimistic concurrency. If-Match must
// equal the stored etag; If-None-Match "*" requires the key to be new.
func (uc *UseCase) SetSetting(ctx context.Context, key, label string, req *dto.SetSettingRequest, ifMatch, ifNoneMatch string) wrapper.JSONResult {
	existing, err := uc.Repo.GetSetting(ctx, key, label)
	if err != nil && err != repository.ErrNotFound {
		uc.Logger.WithError(err).Error("failed to read setting")
		return wrapper.ResponseError(http.StatusInternalServerError, "InternalError", "failed to read setting")
	}
	exists := err == nil

	if exists && existing.Locked {
		return wrapper.ResponseError(http.StatusConflict, "SettingLocked", "setting is read-only")
	}
	if ifNoneMatch == "*" && exists {
		return wrapper.ResponseError(http.StatusPreconditionFailed, "KeyAlreadyExists", "setting already exists")
	}
	if ifMatch != "" {
		if !exists || ifMatch != existing.ETag {
			return wrapper.ResponseError(http.StatusPreconditionFailed, "PreconditionFailed", "etag does not match")
		}
	}

	setting := &models.Setting{
		Key:         key,
		Label:       label,
		Value:       req.Value,
		ContentType: req.ContentType,
	}
	if err := uc.Repo.UpsertSetting(ctx, setting); err != nil {
		uc.Logger.WithError(err).Error("failed to write setting")
		return wrapper.ResponseError(http.StatusInternalServerError, "InternalError", "failed to write setting")
	}

	logger.AddToContext(ctx, logger.String(logger.FieldETag, setting.ETag))
	return wrapper.ResponseSuccess(http.StatusOK, toSettingResponse(setting))
}

// DeleteSetting removes a setting, honoring If-Match.
func (uc *UseCase) DeleteSetting(ctx context.Context, key, label, ifMatch string) wrapper.JSONResult {
	existing, err := uc.Repo.GetSetting(ctx, key, label)
	if err == repository.ErrNotFound {
		return wrapper.ResponseError(http.StatusNotFound, "KeyNotFound", "setting does not exist")
	}
	if err != nil {
		uc.Logger.WithError(err).Error("failed to read setting")
		return wrapper.ResponseError(http.StatusInternalServerError, "InternalError", "failed to read setting")
	}
	if existing.Locked {
		return wrapper.ResponseError(http.StatusConflict, "SettingLocked", "setting is read-only")
	}
	if ifMatch != "" && ifMatch != existing.ETag {
		return wrapper.ResponseError(http.StatusPreconditionFailed, "PreconditionFailed", "etag does not match")
	}

	deleted, err := uc.Repo.DeleteSetting(ctx, key, label)
	if err == repository.ErrNotFound {
		return wrapper.ResponseError(http.StatusNotFound, "KeyNotFound", "setting does not exist")
	}
	if err != nil {
		uc.Logger.WithError(err).Error("failed to delete setting")
		return wrapper.ResponseError(http.StatusInternalServerError, "InternalError", "failed to delete setting")
	}
	return wrapper.ResponseSuccess(http.StatusOK, toSettingResponse(deleted))
}

// SetSettingLock toggles the read-only flag. Locking does not rotate the
// etag, so cached reads stay valid.
func (uc *UseCase) SetSettingLock(ctx context.Context, key, label string, locked bool) wrapper.JSONResult {
	existing, err := uc.Repo.GetSetting(ctx, key, label)
	if err == repository.ErrNotFound {
		return wrapper.ResponseError(http.StatusNotFound, "KeyNotFound", "setting does not exist")
	}
	if err != nil {
		uc.Logger.WithError(err).Error("failed to read setting")
		return wrapper.ResponseError(http.StatusInternalServerError, "InternalError", "failed to read setting")
	}

	if existing.Locked != locked {
		existing.Locked = locked
		if err := uc.Repo.SetSettingLocked(ctx, existing.ID, locked); err != nil {
			uc.Logger.WithError(err).Error("failed to update lock")
			return wrapper.ResponseError(http.StatusInternalServerError, "InternalError", "failed to update lock")
		}
	}
	return wrapper.ResponseSuccess(http.StatusOK, toSettingResponse(existing))
}

// ListSettings serves one page of settings with a relative nextLink.
func (uc *UseCase) ListSettings(ctx context.Context, keyFilter, labelFilter string, top, skip int) wrapper.JSONResult {
	if top <= 0 || top > maxPageSize {
		top = defaultPageSize
	}
	if skip < 0 {
		skip = 0
	}

	settings, hasMore, err := uc.Repo.ListSettings(ctx, keyFilter, labelFilter, skip, top)
	if err != nil {
		uc.Logger.WithError(err).Error("failed to list settings")
		return wrapper.ResponseError(http.StatusInternalServerError, "InternalError", "failed to list settings")
	}

	res := dto.ListSettingsResponse{Value: make([]dto.SettingResponse, 0, len(settings))}
	for i := range settings {
		res.Value = append(res.Value, toSettingResponse(&settings[i]))
	}
	if hasMore {
		q := url.Values{}
		if keyFilter != "" {
			q.Set("key", keyFilter)
		}
		if labelFilter != "" {
			q.Set("label", labelFilter)
		}
		q.Set("$top", strconv.Itoa(top))
		q.Set("$skip", strconv.Itoa(skip+top))
		res.NextLink = "/kv?" + q.Encode()
	}
	return wrapper.ResponseSuccess(http.StatusOK, res)
}

// Lease applies one lease action to a blob.
func (uc *UseCase) Lease(ctx context.Context, container, blob string, req *dto.LeaseRequest) wrapper.JSONResult {
	lease, err := uc.Repo.GetOrCreateLease(ctx, container, blob)
	if err != nil {
		uc.Logger.WithError(err).Error("failed to load lease")
		return wrapper.ResponseError(http.StatusInternalServerError, "InternalError", "failed to load lease")
	}

	now := time.Now()
	if lease.Expired(now) {
		lease.State = models.LeaseStateAvailable
		lease.LeaseID = ""
		lease.ExpiresAt = nil
	}

	logger.AddToContext(ctx,
		logger.String("lease_action", req.Action),
		logger.String("container", container),
		logger.String("blob", blob))

	switch req.Action {
	case dto.LeaseActionAcquire:
		return uc.acquireLease(ctx, lease, req, now)
	case dto.LeaseActionRenew:
		return uc.renewLease(ctx, lease, req, now)
	case dto.LeaseActionRelease:
		return uc.releaseLease(ctx, lease, req)
	case dto.LeaseActionBreak:
		return uc.breakLease(ctx, lease)
	default:
		return wrapper.ResponseError(http.StatusBadRequest, "InvalidHeaderValue", "unknown lease action")
	}
}

func (uc *UseCase) acquireLease(ctx context.Context, lease *models.BlobLease, req *dto.LeaseRequest, now time.Time) wrapper.JSONResult {
	if lease.State == models.LeaseStateLeased && lease.LeaseID != req.ProposedLeaseID {
		return wrapper.ResponseError(http.StatusConflict, "LeaseAlreadyPresent", "the blob is already leased")
	}

	duration := req.Duration
	if duration == 0 {
		duration = uc.Config.Lease.DefaultDurationSeconds
	}

	leaseID := req.ProposedLeaseID
	if leaseID == "" {
		leaseID = uuid.NewString()
	}

	lease.LeaseID = leaseID
	lease.State = models.LeaseStateLeased
	lease.DurationSeconds = duration
	lease.Epoch++
	if duration == -1 {
		lease.ExpiresAt = nil
	} else {
		exp := now.Add(time.Duration(duration) * time.Second)
		lease.ExpiresAt = &exp
	}

	if err := uc.Repo.SaveLease(ctx, lease); err != nil {
		uc.Logger.WithError(err).Error("failed to save lease")
		return wrapper.ResponseError(http.StatusInternalServerError, "InternalError", "failed to save lease")
	}
	logger.AddToContext(ctx, logger.Int64(logger.FieldEpoch, lease.Epoch))
	return wrapper.ResponseSuccess(http.StatusCreated, dto.LeaseResponse{
		LeaseID: lease.LeaseID,
		State:   lease.State,
		Epoch:   lease.Epoch,
	})
}

func (uc *UseCase) renewLease(ctx context.Context, lease *models.BlobLease, req *dto.LeaseRequest, now time.Time) wrapper.JSONResult {
	if lease.State != models.LeaseStateLeased || lease.LeaseID != req.LeaseID {
		return wrapper.ResponseError(http.StatusConflict, "LeaseIdMismatchWithLeaseOperation",
			"no active lease with the given id")
	}

	if lease.DurationSeconds != -1 {
		exp := now.Add(time.Duration(lease.DurationSeconds) * time.Second)
		lease.ExpiresAt = &exp
	}
	if err := uc.Repo.SaveLease(ctx, lease); err != nil {
		uc.Logger.WithError(err).Error("failed to save lease")
		return wrapper.ResponseError(http.StatusInternalServerError, "InternalError", "failed to save lease")
	}
	return wrapper.ResponseSuccess(http.StatusOK, dto.LeaseResponse{
		LeaseID: lease.LeaseID,
		State:   lease.State,
		Epoch:   lease.Epoch,
	})
}

func (uc *UseCase) releaseLease(ctx context.Context, lease *models.BlobLease, req *dto.LeaseRequest) wrapper.JSONResult {
	if lease.State != models.LeaseStateLeased || lease.LeaseID != req.LeaseID {
		return wrapper.ResponseError(http.StatusConflict, "LeaseIdMismatchWithLeaseOperation",
			"no active lease with the given id")
	}

	lease.State = models.LeaseStateAvailable
	lease.LeaseID = ""
	lease.ExpiresAt = nil
	if err := uc.Repo.SaveLease(ctx, lease); err != nil {
		uc.Logger.WithError(err).Error("failed to save lease")
		return wrapper.ResponseError(http.StatusInternalServerError, "InternalError", "failed to save lease")
	}
	return wrapper.ResponseSuccess(http.StatusOK, dto.LeaseResponse{
		State: lease.State,
		Epoch: lease.Epoch,
	})
}

func (uc *UseCase) breakLease(ctx context.Context, lease *models.BlobLease) wrapper.JSONResult {
	if lease.State != models.LeaseStateLeased {
		return wrapper.ResponseError(http.StatusConflict, "LeaseNotPresentWithLeaseOperation",
			"there is no lease to break")
	}

	// Breaking ends the lease immediately. The lease id becomes unusable
	// but the epoch survives so the next acquire still fences old holders.
	lease.State = models.LeaseStateBroken
	lease.LeaseID = ""
	lease.ExpiresAt = nil
	if err := uc.Repo.SaveLease(ctx, lease); err != nil {
		uc.Logger.WithError(err).Error("failed to save lease")
		return wrapper.ResponseError(http.StatusInternalServerError, "InternalError", "failed to save lease")
	}
	return wrapper.ResponseSuccess(http.StatusAccepted, dto.LeaseResponse{
		State:            lease.State,
		Epoch:            lease.Epoch,
		RemainingSeconds: 0,
	})
}

// StartImport creates the operation record and processes the import in the
// background.
func (uc *UseCase) StartImport(ctx context.Context, req *dto.ImportRequest) wrapper.JSONResult {
	op, err := uc.Repo.CreateOperation(ctx)
	if err != nil {
		uc.Logger.WithError(err).Error("failed to create operation")
		return wrapper.ResponseError(http.StatusInternalServerError, "InternalError", "failed to create operation")
	}

	go uc.processImport(op.ID, req.Settings)

	logger.AddToContext(ctx, logger.String(logger.FieldOperation, op.ID))
	return wrapper.ResponseSuccess(http.StatusAccepted, dto.OperationResponse{
		ID:     op.ID,
		Status: op.Status,
	})
}

// processImport runs detached from the request; it gets its own context.
func (uc *UseCase) processImport(opID string, settings []dto.ImportSetting) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	imported := 0
	for _, s := range settings {
		existing, err := uc.Repo.GetSetting(ctx, s.Key, s.Label)
		if err != nil && err != repository.ErrNotFound {
			uc.failOperation(ctx, opID, "InternalError", "failed to read setting during import")
			return
		}
		if err == nil && existing.Locked {
			uc.failOperation(ctx, opID, "SettingLocked", "import touches a read-only setting: "+s.Key)
			return
		}

		setting := &models.Setting{
			Key:         s.Key,
			Label:       s.Label,
			Value:       s.Value,
			ContentType: s.ContentType,
		}
		if err := uc.Repo.UpsertSetting(ctx, setting); err != nil {
			uc.failOperation(ctx, opID, "InternalError", "failed to write setting during import")
			return
		}
		imported++
	}

	result, _ := json.Marshal(dto.ImportResult{Imported: imported})
	if err := uc.Repo.CompleteOperation(ctx, opID, models.OperationStatusSucceeded, "", "", string(result)); err != nil {
		uc.Logger.WithError(err).Error("failed to complete operation",
			logger.String(logger.FieldOperation, opID))
	}
}

func (uc *UseCase) failOperation(ctx context.Context, opID, code, message string) {
	if err := uc.Repo.CompleteOperation(ctx, opID, models.OperationStatusFailed, code, message, ""); err != nil {
		uc.Logger.WithError(err).Error("failed to record operation failure",
			logger.String(logger.FieldOperation, opID))
	}
}

// GetOperation serves the status document polled by clients.
func (uc *UseCase) GetOperation(ctx context.Context, id string) wrapper.JSONResult {
	op, err := uc.Repo.GetOperation(ctx, id)
	if err == repository.ErrNotFound {
		return wrapper.ResponseError(http.StatusNotFound, "OperationNotFound", "operation does not exist")
	}
	if err != nil {
		uc.Logger.WithError(err).Error("failed to read operation")
		return wrapper.ResponseError(http.StatusInternalServerError, "InternalError", "failed to read operation")
	}

	res := dto.OperationResponse{ID: op.ID, Status: op.Status}
	if op.ErrorCode != "" || op.ErrorMessage != "" {
		res.Error = &wrapper.ErrorBody{Code: op.ErrorCode, Message: op.ErrorMessage}
	}
	if op.Result != "" {
		res.Result = json.RawMessage(op.Result)
	}
	return wrapper.ResponseSuccess(http.StatusOK, res)
}

// PurgeFinishedOperations is run periodically to bound the operations table.
func (uc *UseCase) PurgeFinishedOperations(ctx context.Context) error {
	n, err := uc.Repo.PurgeOperations(ctx, time.Now().Add(-operationRetention))
	if err != nil {
		return err
	}
	if n > 0 {
		uc.Logger.Debug("purged finished operations", logger.Int64("count", n))
	}
	return nil
}

func toSettingResponse(s *models.Setting) dto.SettingResponse {
	return dto.SettingResponse{
		Key:         s.Key,
		Label:       s.Label,
		Value:       s.Value,
		ContentType: s.ContentType,
		ETag:        s.ETag,
		Locked:      s.Locked,
	}
}
