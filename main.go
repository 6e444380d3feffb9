package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go/v7"

	"reservation-system/config"
	"reservation-system/handlers"
	"reservation-system/internal/store"
	_ "reservation-system/migrations"
	"reservation-system/monitoring"
	"reservation-system/security"
	"reservation-system/services"
	"reservation-system/utils"
)

func main() {
	app := pocketbase.New()

	cfg := config.LoadConfig()

	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUUID))
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	// Stores
	reservationStore := store.NewReservationStore(app)
	scanStore := store.NewAccessScanStore(app)
	paymentStore := store.NewPaymentRecordStore(app)
	deviceStore := store.NewDeviceRecordStore(app)

	// Services
	clock := services.NewSystemClock()
	locker := services.NewRedisLocker(redisClient, cfg)
	commandPort := services.NewPubNubCommandPort(pn, cfg.DeviceTopicPrefix)
	tokenService := services.NewTokenService(cfg.AppSecret, clock)
	availabilityService := services.NewAvailabilityService(reservationStore, cfg)
	reservationService := services.NewReservationService(reservationStore, availabilityService, locker, clock, cfg)
	accessService := services.NewAccessService(tokenService, reservationStore, scanStore, deviceStore, commandPort, locker, clock, cfg)
	deviceService := services.NewDeviceService(deviceStore, commandPort, pn, clock, cfg)
	paymentService := services.NewPaymentService(paymentStore, reservationService, redisClient, pn, clock, cfg)

	// Handlers
	reservationHandler := handlers.NewReservationHandler(reservationService, availabilityService)
	accessHandler := handlers.NewAccessHandler(tokenService, accessService, reservationService, deviceService, cfg)
	paymentHandler := handlers.NewPaymentHandler(paymentService, cfg)
	deviceHandler := handlers.NewDeviceHandler(deviceService)

	rateLimiter := security.NewRateLimiter(redisClient)
	scanLimit := rateLimiter.Limit("scan", 60, time.Minute)
	webhookLimit := rateLimiter.Limit("webhook", 120, time.Minute)

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background subscribers
	go paymentService.SubscribeToGatewayEvents(ctx)
	go deviceService.SubscribeToDeviceEvents(ctx)

	if cfg.EnableMetrics {
		go monitoring.StartMetricsServer(monitoring.NewMetricsServer(cfg.MetricsPort))
	}

	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Reservation endpoints
		e.Router.POST("/api/reservations", reservationHandler.CreateReservation)
		e.Router.GET("/api/reservations", reservationHandler.ListMyReservations)
		e.Router.GET("/api/reservations/{reservationId}", reservationHandler.GetReservation)
		e.Router.PATCH("/api/reservations/{reservationId}", reservationHandler.UpdateReservation)
		e.Router.DELETE("/api/reservations/{reservationId}", reservationHandler.DeleteReservation)
		e.Router.POST("/api/reservations/{reservationId}/confirm", reservationHandler.ConfirmReservation)
		e.Router.POST("/api/reservations/{reservationId}/check-in", reservationHandler.CheckIn)
		e.Router.POST("/api/reservations/{reservationId}/check-out", reservationHandler.CheckOut)
		e.Router.POST("/api/reservations/{reservationId}/cancel", reservationHandler.CancelReservation)
		e.Router.GET("/api/resources/{resourceId}/slots", reservationHandler.GetAvailableSlots)

		// QR token endpoints
		e.Router.POST("/api/qr/reservations/{reservationId}", accessHandler.IssueReservationToken)
		e.Router.POST("/api/qr/resources/{resourceId}", accessHandler.IssueResourceToken)
		e.Router.POST("/api/qr/verify", accessHandler.VerifyToken)
		e.Router.GET("/api/reservations/{reservationId}/scans", accessHandler.GetScanHistory)

		// Device scan endpoints
		e.Router.POST("/api/scan/check-in", accessHandler.ScanCheckIn).BindFunc(scanLimit)
		e.Router.POST("/api/scan/check-out", accessHandler.ScanCheckOut).BindFunc(scanLimit)
		e.Router.POST("/api/scan/access", accessHandler.ScanAccess).BindFunc(scanLimit)

		// Payment endpoints
		e.Router.POST("/api/payments/session", paymentHandler.CreatePaymentSession)
		e.Router.GET("/api/payments", paymentHandler.ListMyPayments)
		e.Router.GET("/api/payments/{paymentId}", paymentHandler.GetPayment)
		e.Router.POST("/api/payments/webhook", paymentHandler.HandleWebhook).BindFunc(webhookLimit)

		// Device registry endpoints
		e.Router.POST("/api/devices", deviceHandler.RegisterDevice)
		e.Router.GET("/api/devices", deviceHandler.ListDevices)
		e.Router.GET("/api/devices/{deviceId}", deviceHandler.GetDevice)
		e.Router.DELETE("/api/devices/{deviceId}", deviceHandler.DeleteDevice)
		e.Router.POST("/api/devices/{deviceId}/lock", deviceHandler.ControlDoorLock)
		e.Router.POST("/api/devices/{deviceId}/ping", deviceHandler.PingDevice)
		e.Router.GET("/api/devices/{deviceId}/logs", deviceHandler.GetDeviceLogs)
		e.Router.GET("/api/devices/{deviceId}/telemetry", deviceHandler.GetDeviceTelemetry)

		// Test endpoint for payment simulation
		if cfg.Environment == "development" {
			e.Router.POST("/api/test/simulate-payment", paymentHandler.SimulatePayment)
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}

func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()

	time.Sleep(2 * time.Second)
	os.Exit(0)
}
