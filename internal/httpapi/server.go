package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/emse-students/Le-Cercle/pkg/cercle"
)

// Run boots the HTTP API using the supplied configuration and serves until
// the context is cancelled.
func Run(ctx context.Context, cfg Config, service *cercle.Service, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	router := NewRouter(cfg, service, logger)
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("cercle api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter assembles the gin engine with middleware and routes.
func NewRouter(cfg Config, service *cercle.Service, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(requestLogMiddleware(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handler := &httpHandler{service: service, logger: logger}

	api := router.Group("/api")
	api.Use(authMiddleware([]byte(cfg.SigningKey)))

	api.POST("/sales", handler.handleRecordSale)
	api.POST("/recharges", handler.handleRecharge)

	api.POST("/users", handler.handleRegisterUser)
	api.DELETE("/users/:id", handler.handleDeleteUser)
	api.PATCH("/users/:id/role", handler.handleUpdateRole)
	api.PATCH("/users/:id/cotisation", handler.handleUpdateCotisation)
	api.GET("/users/:id/balance", handler.handleBalance)
	api.GET("/users/:id/entries", handler.handleUserEntries)
	api.POST("/users/:id/recompute-balance", handler.handleRecomputeBalance)

	api.DELETE("/entries/:id", handler.handleDeleteEntry)
	api.GET("/entries", handler.handleEntriesBetween)

	api.POST("/sessions", handler.handleCreateSession)
	api.GET("/sessions/active", handler.handleActiveSession)
	api.POST("/sessions/:id/open", handler.handleOpenSession)
	api.POST("/sessions/:id/close", handler.handleCloseSession)
	api.DELETE("/sessions/:id", handler.handleDeleteSession)
	api.GET("/sessions/:id/entries", handler.handleSessionEntries)
	api.GET("/sessions/:id/stats", handler.handleSessionStats)
	api.PUT("/sessions/:id/staff/:user", handler.handleAssignStaff)
	api.DELETE("/sessions/:id/staff/:user", handler.handleRemoveStaff)

	api.POST("/items", handler.handleCreateItem)
	api.DELETE("/items/:kind/:id", handler.handleDeleteItem)

	api.GET("/groups/:id/menu", handler.handleMenu)
	api.POST("/groups/:id/menu", handler.handleAddMenuItem)
	api.DELETE("/groups/:id/menu/:kind/:item", handler.handleRemoveMenuItem)

	api.GET("/stats", handler.handleGlobalStats)

	return router
}

func requestLogMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		started := time.Now()
		ctx.Next()
		logger.Info("request",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.Request.URL.Path),
			zap.Int("status", ctx.Writer.Status()),
			zap.Duration("elapsed", time.Since(started)),
			zap.String("request_id", ctx.Writer.Header().Get(headerRequestID)),
		)
	}
}

type httpHandler struct {
	service *cercle.Service
	logger  *zap.Logger
}

type saleRequest struct {
	BeneficiaryID int64  `json:"beneficiary_id"`
	SessionID     int64  `json:"session_id"`
	Kind          string `json:"kind"`
	ItemID        int64  `json:"item_id"`
	Quantity      int64  `json:"quantity"`
	Metadata      string `json:"metadata"`
}

func (handler *httpHandler) handleRecordSale(ctx *gin.Context) {
	principal, ok := getPrincipal(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing principal"))
		return
	}
	var request saleRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	kind, err := cercle.ParseEntryKind(request.Kind)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	metadata, err := cercle.NewMetadataJSON(request.Metadata)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	entry, err := handler.service.RecordSale(ctx.Request.Context(), principal, cercle.SaleDraft{
		BeneficiaryID: cercle.UserID(request.BeneficiaryID),
		SessionID:     cercle.SessionID(request.SessionID),
		Kind:          kind,
		ItemID:        cercle.ItemID(request.ItemID),
		Quantity:      request.Quantity,
		Metadata:      metadata,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"entry": entryPayloadFrom(entry)})
}

type rechargeRequest struct {
	UserID      int64 `json:"user_id"`
	AmountCents int64 `json:"amount_cents"`
}

func (handler *httpHandler) handleRecharge(ctx *gin.Context) {
	principal, ok := getPrincipal(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing principal"))
		return
	}
	var request rechargeRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	entry, err := handler.service.Recharge(ctx.Request.Context(), principal, cercle.UserID(request.UserID), cercle.AmountCents(request.AmountCents))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"entry": entryPayloadFrom(entry)})
}

type registerUserRequest struct {
	Login      string `json:"login"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Promo      string `json:"promo"`
	Role       string `json:"role"`
	Cotisation string `json:"cotisation"`
}

func (handler *httpHandler) handleRegisterUser(ctx *gin.Context) {
	if !handler.requireAdmin(ctx) {
		return
	}
	var request registerUserRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	user, err := handler.service.RegisterUser(ctx.Request.Context(), cercle.UserDraft{
		Login:      request.Login,
		FirstName:  request.FirstName,
		LastName:   request.LastName,
		Email:      request.Email,
		Promo:      request.Promo,
		Role:       cercle.Role(request.Role),
		Cotisation: cercle.Cotisation(request.Cotisation),
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"user": userPayloadFrom(user)})
}

func (handler *httpHandler) handleDeleteUser(ctx *gin.Context) {
	if !handler.requireAdmin(ctx) {
		return
	}
	userID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := handler.service.DeleteUser(ctx.Request.Context(), cercle.UserID(userID)); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

type roleRequest struct {
	Role string `json:"role"`
}

func (handler *httpHandler) handleUpdateRole(ctx *gin.Context) {
	if !handler.requireAdmin(ctx) {
		return
	}
	userID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var request roleRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if err := handler.service.UpdateUserRole(ctx.Request.Context(), cercle.UserID(userID), cercle.Role(request.Role)); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

type cotisationRequest struct {
	Cotisation string `json:"cotisation"`
}

func (handler *httpHandler) handleUpdateCotisation(ctx *gin.Context) {
	if !handler.requireAdmin(ctx) {
		return
	}
	userID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var request cotisationRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if err := handler.service.UpdateUserCotisation(ctx.Request.Context(), cercle.UserID(userID), cercle.Cotisation(request.Cotisation)); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleBalance(ctx *gin.Context) {
	userID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if !handler.requireSelfOrAdmin(ctx, cercle.UserID(userID)) {
		return
	}
	balance, err := handler.service.Balance(ctx.Request.Context(), cercle.UserID(userID))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balance_cents": int64(balance)})
}

func (handler *httpHandler) handleUserEntries(ctx *gin.Context) {
	userID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if !handler.requireSelfOrAdmin(ctx, cercle.UserID(userID)) {
		return
	}
	limit := queryInt(ctx, "limit", 0)
	offset := queryInt(ctx, "offset", 0)
	entries, err := handler.service.UserEntries(ctx.Request.Context(), cercle.UserID(userID), limit, offset)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": entryPayloadsFrom(entries)})
}

func (handler *httpHandler) handleRecomputeBalance(ctx *gin.Context) {
	if !handler.requireAdmin(ctx) {
		return
	}
	userID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	balance, err := handler.service.RecomputeBalance(ctx.Request.Context(), cercle.UserID(userID))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balance_cents": int64(balance)})
}

func (handler *httpHandler) handleDeleteEntry(ctx *gin.Context) {
	if !handler.requireAdmin(ctx) {
		return
	}
	entryID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := handler.service.DeleteEntry(ctx.Request.Context(), cercle.EntryID(entryID)); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleEntriesBetween(ctx *gin.Context) {
	if !handler.requireAdmin(ctx) {
		return
	}
	from := int64(queryInt(ctx, "from", 0))
	to := int64(queryInt(ctx, "to", 0))
	limit := queryInt(ctx, "limit", 0)
	entries, err := handler.service.EntriesBetween(ctx.Request.Context(), from, to, limit)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": entryPayloadsFrom(entries)})
}

type createSessionRequest struct {
	GroupName   string `json:"group_name"`
	Year        int    `json:"year"`
	DateUnixUTC int64  `json:"date_unix_utc"`
}

func (handler *httpHandler) handleCreateSession(ctx *gin.Context) {
	if !handler.requireAdmin(ctx) {
		return
	}
	var request createSessionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	session, err := handler.service.CreateSession(ctx.Request.Context(), request.GroupName, request.Year, request.DateUnixUTC)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"session": sessionPayloadFrom(session)})
}

func (handler *httpHandler) handleActiveSession(ctx *gin.Context) {
	session, err := handler.service.ActiveSession(ctx.Request.Context())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"session": sessionPayloadFrom(session)})
}

func (handler *httpHandler) handleOpenSession(ctx *gin.Context) {
	if !handler.requireAdmin(ctx) {
		return
	}
	sessionID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := handler.service.OpenSession(ctx.Request.Context(), cercle.SessionID(sessionID)); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleCloseSession(ctx *gin.Context) {
	if !handler.requireAdmin(ctx) {
		return
	}
	sessionID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := handler.service.CloseSession(ctx.Request.Context(), cercle.SessionID(sessionID)); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleDeleteSession(ctx *gin.Context) {
	if !handler.requireAdmin(ctx) {
		return
	}
	sessionID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := handler.service.DeleteSession(ctx.Request.Context(), cercle.SessionID(sessionID)); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleSessionEntries(ctx *gin.Context) {
	principal, ok := getPrincipal(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing principal"))
		return
	}
	sessionID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := handler.service.AuthorizeSessionRead(ctx.Request.Context(), principal, cercle.SessionID(sessionID)); err != nil {
		handler.respondError(ctx, err)
		return
	}
	entries, err := handler.service.SessionEntries(ctx.Request.Context(), cercle.SessionID(sessionID))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": entryPayloadsFrom(entries)})
}

func (handler *httpHandler) handleSessionStats(ctx *gin.Context) {
	sessionID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	tallies, err := handler.service.SessionStats(ctx.Request.Context(), cercle.SessionID(sessionID))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := make([]gin.H, 0, len(tallies))
	for _, tally := range tallies {
		payload = append(payload, gin.H{
			"kind":          string(tally.Kind),
			"item_id":       int64(tally.ItemID),
			"name":          tally.Name,
			"count":         tally.Count,
			"revenue_cents": int64(tally.RevenueCents),
			"volume_ml":     int64(tally.VolumeML),
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"items": payload})
}

func (handler *httpHandler) handleAssignStaff(ctx *gin.Context) {
	if !handler.requireAdmin(ctx) {
		return
	}
	sessionID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	userID, ok := pathID(ctx, "user")
	if !ok {
		return
	}
	if err := handler.service.AssignStaff(ctx.Request.Context(), cercle.SessionID(sessionID), cercle.UserID(userID)); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleRemoveStaff(ctx *gin.Context) {
	if !handler.requireAdmin(ctx) {
		return
	}
	sessionID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	userID, ok := pathID(ctx, "user")
	if !ok {
		return
	}
	if err := handler.service.RemoveStaff(ctx.Request.Context(), cercle.SessionID(sessionID), cercle.UserID(userID)); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

type createItemRequest struct {
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	VolumeML   int64  `json:"volume_ml"`
	ABVTenths  int    `json:"abv_tenths"`
	Stock      int    `json:"stock"`
}

func (handler *httpHandler) handleCreateItem(ctx *gin.Context) {
	principal, ok := getPrincipal(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing principal"))
		return
	}
	var request createItemRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	item, err := handler.service.CreateCatalogItem(ctx.Request.Context(), principal, cercle.CatalogItem{
		Kind:       cercle.EntryKind(request.Kind),
		Name:       request.Name,
		PriceCents: cercle.AmountCents(request.PriceCents),
		VolumeML:   cercle.Milliliters(request.VolumeML),
		ABVTenths:  request.ABVTenths,
		Stock:      request.Stock,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"item": gin.H{
		"id":          int64(item.ID),
		"kind":        string(item.Kind),
		"name":        item.Name,
		"price_cents": int64(item.PriceCents),
		"volume_ml":   int64(item.VolumeML),
	}})
}

func (handler *httpHandler) handleDeleteItem(ctx *gin.Context) {
	if !handler.requireAdmin(ctx) {
		return
	}
	kind, err := cercle.ParseEntryKind(ctx.Param("kind"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	itemID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := handler.service.DeleteCatalogItem(ctx.Request.Context(), kind, cercle.ItemID(itemID)); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleMenu(ctx *gin.Context) {
	groupID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	menu, err := handler.service.MenuFor(ctx.Request.Context(), cercle.SessionGroupID(groupID))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := make([]gin.H, 0, len(menu))
	for _, item := range menu {
		payload = append(payload, gin.H{
			"kind":    string(item.Kind),
			"item_id": int64(item.ItemID),
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"menu": payload})
}

type menuRequest struct {
	Kind   string `json:"kind"`
	ItemID int64  `json:"item_id"`
}

func (handler *httpHandler) handleAddMenuItem(ctx *gin.Context) {
	if !handler.requireAdmin(ctx) {
		return
	}
	groupID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var request menuRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	kind, err := cercle.ParseEntryKind(request.Kind)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	err = handler.service.AddMenuItem(ctx.Request.Context(), cercle.MenuItem{
		GroupID: cercle.SessionGroupID(groupID),
		Kind:    kind,
		ItemID:  cercle.ItemID(request.ItemID),
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleRemoveMenuItem(ctx *gin.Context) {
	if !handler.requireAdmin(ctx) {
		return
	}
	groupID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	kind, err := cercle.ParseEntryKind(ctx.Param("kind"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	itemID, ok := pathID(ctx, "item")
	if !ok {
		return
	}
	err = handler.service.RemoveMenuItem(ctx.Request.Context(), cercle.MenuItem{
		GroupID: cercle.SessionGroupID(groupID),
		Kind:    kind,
		ItemID:  cercle.ItemID(itemID),
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleGlobalStats(ctx *gin.Context) {
	if !handler.requireAdmin(ctx) {
		return
	}
	stats, err := handler.service.GlobalStats(ctx.Request.Context())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"positive_balance_cents": int64(stats.PositiveBalanceCents),
		"negative_balance_cents": int64(stats.NegativeBalanceCents),
		"user_count":             stats.UserCount,
		"contributor_count":      stats.ContributorCount,
	})
}

func (handler *httpHandler) requireSelfOrAdmin(ctx *gin.Context, userID cercle.UserID) bool {
	principal, ok := getPrincipal(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing principal"))
		return false
	}
	if principal.UserID == userID {
		return true
	}
	if err := handler.service.AuthorizeAdmin(principal); err != nil {
		handler.respondError(ctx, err)
		return false
	}
	return true
}

func (handler *httpHandler) requireAdmin(ctx *gin.Context) bool {
	principal, ok := getPrincipal(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing principal"))
		return false
	}
	if err := handler.service.AuthorizeAdmin(principal); err != nil {
		handler.respondError(ctx, err)
		return false
	}
	return true
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.Error(err), zap.String("path", ctx.FullPath()))
	}
	ctx.JSON(status, errorResponse(codeForStatus(status), err.Error()))
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, cercle.ErrUserNotFound),
		errors.Is(err, cercle.ErrSessionNotFound),
		errors.Is(err, cercle.ErrGroupNotFound),
		errors.Is(err, cercle.ErrItemNotFound),
		errors.Is(err, cercle.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, cercle.ErrInvalidQuantity),
		errors.Is(err, cercle.ErrInvalidAmount),
		errors.Is(err, cercle.ErrMissingItem),
		errors.Is(err, cercle.ErrInvalidKind),
		errors.Is(err, cercle.ErrInvalidRole),
		errors.Is(err, cercle.ErrInvalidStatus),
		errors.Is(err, cercle.ErrInvalidLogin),
		errors.Is(err, cercle.ErrInvalidItemName),
		errors.Is(err, cercle.ErrInvalidMetadata):
		return http.StatusBadRequest
	case errors.Is(err, cercle.ErrSessionAlreadyOpen),
		errors.Is(err, cercle.ErrItemInUse),
		errors.Is(err, cercle.ErrDuplicateLogin):
		return http.StatusConflict
	case errors.Is(err, cercle.ErrNotAuthorized),
		errors.Is(err, cercle.ErrNotStaffed),
		errors.Is(err, cercle.ErrSessionClosed):
		return http.StatusForbidden
	case errors.Is(err, cercle.ErrContention):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadRequest:
		return "invalid_argument"
	case http.StatusConflict:
		return "conflict"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusServiceUnavailable:
		return "contention"
	default:
		return "internal"
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

func pathID(ctx *gin.Context, name string) (int64, bool) {
	value, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || value <= 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_argument", "expected numeric "+name))
		return 0, false
	}
	return value, true
}

func queryInt(ctx *gin.Context, name string, fallback int) int {
	raw := ctx.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func userPayloadFrom(user cercle.User) gin.H {
	return gin.H{
		"id":               int64(user.ID),
		"login":            user.Login,
		"first_name":       user.FirstName,
		"last_name":        user.LastName,
		"email":            user.Email,
		"promo":            user.Promo,
		"role":             string(user.Role),
		"cotisation":       string(user.Cotisation),
		"balance_cents":    int64(user.BalanceCents),
		"created_unix_utc": user.CreatedUnixUTC,
	}
}

func sessionPayloadFrom(session cercle.Session) gin.H {
	return gin.H{
		"id":                int64(session.ID),
		"group_id":          int64(session.GroupID),
		"date_unix_utc":     session.DateUnixUTC,
		"total_sales_cents": int64(session.TotalSalesCents),
		"total_volume_ml":   int64(session.TotalVolumeML),
	}
}

func entryPayloadFrom(entry cercle.Entry) gin.H {
	payload := gin.H{
		"id":             int64(entry.ID),
		"beneficiary_id": int64(entry.BeneficiaryID),
		"payer_id":       int64(entry.PayerID),
		"kind":           string(entry.Kind),
		"date_unix_utc":  entry.DateUnixUTC,
		"quantity":       entry.Quantity,
		"amount_cents":   int64(entry.AmountCents),
		"metadata":       entry.Metadata,
	}
	if entry.SessionID != nil {
		payload["session_id"] = int64(*entry.SessionID)
	}
	if entry.ItemID != nil {
		payload["item_id"] = int64(*entry.ItemID)
	}
	return payload
}

func entryPayloadsFrom(entries []cercle.Entry) []gin.H {
	payload := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, entryPayloadFrom(entry))
	}
	return payload
}
