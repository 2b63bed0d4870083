// posd is the POS terminal API: it wires the cart engine, stock façade,
// pricing resolver and notification queue over the shared mysql/redis
// backend and exposes them to the UI over HTTP.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ydt710/my-pos/appctx"
	"github.com/ydt710/my-pos/cache"
	"github.com/ydt710/my-pos/cart"
	"github.com/ydt710/my-pos/config"
	"github.com/ydt710/my-pos/kvstore"
	"github.com/ydt710/my-pos/models"
	"github.com/ydt710/my-pos/notify"
	"github.com/ydt710/my-pos/pricing"
	"github.com/ydt710/my-pos/stock"
	"github.com/ydt710/my-pos/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel)

	db := config.ConnectDatabaseWithRetry(cfg)
	rdb, locker := config.ConnectRedisWithRetry(cfg)

	kv := kvstore.NewRedis(rdb)

	cacheOpts := []cache.Option{}
	if cfg.CacheLifespan > 0 {
		cacheOpts = append(cacheOpts, cache.WithTTL(cache.CategoryProduct, cfg.CacheLifespan))
	}
	appCache := cache.New(kv, logger, cacheOpts...)
	defer appCache.Close()

	store := models.NewStore(db, locker, appCache, logger)
	if err := store.MigrateTable(); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	notifications := notify.NewQueue()
	facade := stock.NewFacade(store, logger)
	movements := stock.NewMovements(store, logger)
	resolver := pricing.NewResolver(store, kv, logger)
	engine := cart.New(facade, resolver, notifications, kv, logger)

	// Pricing-context changes reprice the cart.
	resolver.Subscribe(engine.Reprice)

	router := newRouter(&app{
		store:         store,
		facade:        facade,
		movements:     movements,
		resolver:      resolver,
		cart:          engine,
		notifications: notifications,
		log:           logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()
	log.Printf("posd listening on :%s", cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

type app struct {
	store         *models.Store
	facade        *stock.Facade
	movements     *stock.Movements
	resolver      *pricing.Resolver
	cart          *cart.Cart
	notifications *notify.Queue
	log           *logrus.Logger
}

func newRouter(a *app) *gin.Engine {
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:           12 * time.Hour,
		AllowCredentials: false,
	}))
	router.Use(requestContext())

	api := router.Group("/api")
	{
		api.GET("/products", a.listProducts)
		api.GET("/products/:id", a.getProduct)
		api.GET("/settings", a.getSettings)

		api.GET("/stock/:productId", a.getStock)
		api.POST("/stock/levels", a.getShopStockLevels)
		api.POST("/stock/production", a.addProduction)
		api.POST("/stock/production/:id/confirm", a.confirmProduction)
		api.POST("/stock/transfer", a.transferToShop)
		api.POST("/stock/transfers/:id/accept", a.acceptTransfer)
		api.POST("/stock/transfers/:id/reject", a.rejectTransfer)
		api.POST("/stock/adjust", a.adjustStock)
		api.POST("/stock/sell", a.sellFromShop)

		api.GET("/cart", a.getCart)
		api.POST("/cart/items", a.addCartItem)
		api.PATCH("/cart/items/:id", a.updateCartItem)
		api.DELETE("/cart/items/:id", a.removeCartItem)
		api.DELETE("/cart", a.clearCart)

		api.POST("/pos/customer", a.selectCustomer)
		api.DELETE("/pos/customer", a.clearCustomer)
		api.GET("/pos/customer", a.selectedCustomer)

		api.POST("/checkout", a.checkout)

		api.GET("/ledger/:userId", a.ledger)
		api.GET("/notifications", a.visibleNotification)
	}
	return router
}

// requestContext carries the acting profile id (X-Profile-Id) into the
// request context for created_by stamping and stamps a correlation id for
// log lines. Authentication itself is handled upstream.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader("X-Profile-Id"); id != "" {
			ctx = appctx.Set(ctx, appctx.ContextKeyProfileId, id)
		}
		correlationID := c.GetHeader("X-Correlation-Id")
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		ctx = appctx.Set(ctx, appctx.ContextKeyCorrelationId, correlationID)
		c.Header("X-Correlation-Id", correlationID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (a *app) listProducts(c *gin.Context) {
	products, err := a.store.ListProducts(c.Request.Context(), c.Query("category"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load products"})
		return
	}
	c.JSON(http.StatusOK, products)
}

func (a *app) getProduct(c *gin.Context) {
	p, err := a.store.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load product"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *app) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, a.store.GetSettings(c.Request.Context()))
}

func (a *app) getStock(c *gin.Context) {
	qty, _ := a.facade.GetStock(c.Request.Context(), c.Param("productId"), models.LocationShop)
	c.JSON(http.StatusOK, gin.H{"quantity": qty})
}

func (a *app) getShopStockLevels(c *gin.Context) {
	var input struct {
		ProductIds []string `json:"product_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, a.facade.GetShopStockLevels(c.Request.Context(), input.ProductIds))
}

type movementInput struct {
	ProductId string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	Note      string `json:"note"`
}

func (a *app) addProduction(c *gin.Context) {
	var input movementInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, err := a.movements.AddProduction(c.Request.Context(), input.ProductId, input.Quantity, input.Note)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (a *app) confirmProduction(c *gin.Context) {
	if err := a.movements.ConfirmProductionDone(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *app) transferToShop(c *gin.Context) {
	var input movementInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, err := a.movements.TransferToShop(c.Request.Context(), input.ProductId, input.Quantity, input.Note)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (a *app) acceptTransfer(c *gin.Context) {
	var input struct {
		ActualQuantity int `json:"actual_quantity" binding:"required,min=0"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.movements.AcceptStockTransfer(c.Request.Context(), c.Param("id"), input.ActualQuantity); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *app) rejectTransfer(c *gin.Context) {
	var input struct {
		ActualQuantity int    `json:"actual_quantity" binding:"min=0"`
		Reason         string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.movements.RejectStockTransfer(c.Request.Context(), c.Param("id"), input.ActualQuantity, input.Reason); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *app) adjustStock(c *gin.Context) {
	var input struct {
		ProductId    string `json:"product_id" binding:"required"`
		LocationName string `json:"location_name" binding:"required"`
		NewQuantity  int    `json:"new_quantity" binding:"min=0"`
		Note         string `json:"note"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.movements.AdjustStock(c.Request.Context(), input.ProductId, input.LocationName, input.NewQuantity, input.Note); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *app) sellFromShop(c *gin.Context) {
	var input movementInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.movements.SellFromShop(c.Request.Context(), input.ProductId, input.Quantity, input.Note); err != nil {
		if errors.Is(err, utils.ErrorInsufficientStock) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *app) getCart(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"lines":      a.cart.Lines(),
		"total":      a.cart.Total(),
		"item_count": a.cart.ItemCount(),
	})
}

func (a *app) addCartItem(c *gin.Context) {
	var input struct {
		ProductId string `json:"product_id" binding:"required"`
		Quantity  int    `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := a.store.GetProduct(c.Request.Context(), input.ProductId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load product"})
		return
	}
	ok := a.cart.AddItem(c.Request.Context(), *p, input.Quantity)
	c.JSON(http.StatusOK, gin.H{"added": ok})
}

func (a *app) updateCartItem(c *gin.Context) {
	var input struct {
		Quantity int `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ok := a.cart.UpdateQuantity(c.Request.Context(), c.Param("id"), input.Quantity)
	c.JSON(http.StatusOK, gin.H{"updated": ok})
}

func (a *app) removeCartItem(c *gin.Context) {
	a.cart.RemoveItem(c.Request.Context(), c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (a *app) clearCart(c *gin.Context) {
	a.cart.ClearCart(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (a *app) selectCustomer(c *gin.Context) {
	var input struct {
		CustomerId string `json:"customer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	customer, err := a.store.GetCustomer(c.Request.Context(), input.CustomerId)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "customer not found"})
		return
	}
	if err := a.resolver.SelectCustomer(c.Request.Context(), customer); err != nil {
		a.notifications.Enqueue("Could not load customer prices, please retry", notify.KindWarning, notify.DefaultDuration)
	}
	c.JSON(http.StatusOK, customer)
}

func (a *app) clearCustomer(c *gin.Context) {
	a.resolver.ClearCustomer(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (a *app) selectedCustomer(c *gin.Context) {
	customer := a.resolver.SelectedCustomer()
	if customer == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (a *app) checkout(c *gin.Context) {
	var input struct {
		UserId        *string           `json:"user_id"`
		Guest         *models.GuestInfo `json:"guest"`
		PaymentMethod string            `json:"payment_method"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items := a.cart.CheckoutItems()
	if len(items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cart is empty"})
		return
	}

	userID := input.UserId
	isPos := false
	if selected := a.resolver.SelectedCustomer(); selected != nil {
		userID = &selected.ID
		isPos = true
	}

	order, err := a.store.PayOrder(c.Request.Context(), &models.NewOrder{
		UserID:        userID,
		Guest:         input.Guest,
		IsPosOrder:    isPos,
		PaymentMethod: input.PaymentMethod,
		Items:         items,
	})
	if err != nil {
		if errors.Is(err, utils.ErrorInsufficientStock) {
			a.notifications.Enqueue("Some items are no longer in stock", notify.KindError, notify.DefaultDuration)
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		config.LogError(a.log, "posd", "checkout", appctx.CorrelationId(c.Request.Context()), nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "checkout failed"})
		return
	}

	a.cart.ClearCart(c.Request.Context())
	a.notifications.Enqueue("Order placed", notify.KindSuccess, notify.DefaultDuration)
	c.JSON(http.StatusCreated, order)
}

func (a *app) ledger(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("userId")
	entries, err := a.store.LedgerEntries(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load ledger"})
		return
	}
	balance, err := a.store.LedgerBalance(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load ledger"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "balance": balance})
}

func (a *app) visibleNotification(c *gin.Context) {
	m := a.notifications.Visible()
	if m == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     m.Text,
		"kind":        m.Kind,
		"duration_ms": m.Duration.Milliseconds(),
	})
}
