// cmd/rfid-service/main.go
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"rfid-service/internal/config"
	"rfid-service/internal/database"
	"rfid-service/internal/driver/uhf"
	"rfid-service/internal/repository"
	"rfid-service/internal/routes"
	"rfid-service/internal/service"
	"rfid-service/internal/sink"
	"rfid-service/internal/transport"
	"rfid-service/internal/utils"
)

// cliFlags holds the command-line mode selection
type cliFlags struct {
	serve    bool
	setup    bool
	single   bool
	multi    bool
	stream   bool
	duration time.Duration
	throttle time.Duration

	selectEPC string

	readMem  bool
	writeMem bool
	bank     uint8
	offset   uint16
	count    uint16
	data     string
	password string

	migrate bool
}

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB
	rawLog   *sink.RawLog

	tagRepo       repository.TagRepository
	readerService *service.ReaderService
}

func main() {
	flags := parseFlags()

	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(flags); err != nil {
		app.logger.Error("Run failed", zap.Error(err))
		app.shutdown()
		os.Exit(1)
	}

	app.shutdown()
}

func parseFlags() *cliFlags {
	flags := &cliFlags{}

	pflag.BoolVar(&flags.serve, "serve", false, "run the HTTP API server")
	pflag.BoolVar(&flags.setup, "setup", false, "apply configured region, channel and power to the reader")
	pflag.BoolVar(&flags.single, "single", false, "perform one single-shot inventory round")
	pflag.BoolVar(&flags.multi, "multi", false, "run a bounded inventory session")
	pflag.BoolVar(&flags.stream, "stream", false, "stream inventory until interrupted")
	pflag.DurationVar(&flags.duration, "duration", 0, "bounded session length (with --multi)")
	pflag.DurationVar(&flags.throttle, "throttle", 0, "pause between inventory polls")
	pflag.StringVar(&flags.selectEPC, "select", "", "select one EPC (hex) before inventory")
	pflag.BoolVar(&flags.readMem, "readmem", false, "read tag memory")
	pflag.BoolVar(&flags.writeMem, "writemem", false, "write tag memory")
	pflag.Uint8Var(&flags.bank, "bank", uhf.BankEPC, "memory bank (0=reserved 1=EPC 2=TID 3=user)")
	pflag.Uint16Var(&flags.offset, "offset", 0, "word offset into the memory bank")
	pflag.Uint16Var(&flags.count, "count", 4, "word count to read")
	pflag.StringVar(&flags.data, "data", "", "hex data for --writemem")
	pflag.StringVar(&flags.password, "password", "", "hex access password")
	pflag.BoolVar(&flags.migrate, "migrate", false, "run database migrations and exit")
	pflag.Parse()

	return flags
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "rfid-service")
	serviceLogger.LogServiceStart(cfg.App.Version)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initializeReader(); err != nil {
		return nil, fmt.Errorf("failed to initialize reader: %w", err)
	}

	app.initializeServer()

	return app, nil
}

// initializeDatabase sets up the tag store when it is enabled
func (app *Application) initializeDatabase() error {
	if !app.config.Database.Enabled {
		app.logger.Info("Tag store disabled, tags will not be persisted")
		return nil
	}

	db, err := database.NewConnection(&app.config.Database, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}

	app.database = db
	app.tagRepo = repository.NewTagRepository(db, app.logger)

	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeReader wires transport, driver and reader service together
func (app *Application) initializeReader() error {
	readerCfg := &app.config.Reader

	serial := transport.NewSerialTransport(&transport.Config{
		Port:           readerCfg.Port,
		BaudRate:       readerCfg.BaudRate,
		ReadTimeout:    readerCfg.ReadTimeout,
		ReconnectPause: readerCfg.ReconnectPause,
	}, app.logger)

	readerLogger := utils.NewReaderLogger(app.logger, readerCfg.DeviceID, readerCfg.Port)
	driver := uhf.NewDriver(serial, &uhf.Config{
		MaxRetries:   readerCfg.MaxRetries,
		SettleDelay:  readerCfg.SettleDelay,
		RetryBackoff: readerCfg.RetryBackoff,
	}, readerLogger)

	if app.config.Sinks.RawLog.Enabled {
		app.rawLog = sink.NewRawLog(&app.config.Sinks.RawLog)
		driver.SetRawRecorder(app.rawLog)
	}

	app.readerService = service.NewReaderService(driver, app.tagRepo, app.config, app.logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := driver.Open(ctx); err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", readerCfg.Port, err)
	}

	app.logger.Info("Reader initialized",
		zap.String("port", readerCfg.Port),
		zap.Int("baud_rate", readerCfg.BaudRate),
	)
	return nil
}

// initializeServer sets up the HTTP server and routes
func (app *Application) initializeServer() {
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.readerService,
	)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      routerManager.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}
}

// Run dispatches to the selected CLI mode. With no mode flag the server
// runs, matching --serve.
func (app *Application) Run(flags *cliFlags) error {
	ctx, cancel := signalContext()
	defer cancel()

	switch {
	case flags.migrate:
		return app.runMigrations()
	case flags.setup:
		return app.readerService.ApplySetup(ctx)
	case flags.selectEPC != "" && !flags.single && !flags.multi && !flags.stream:
		return app.readerService.SelectEPC(ctx, flags.selectEPC)
	case flags.single:
		return app.runSingle(ctx, flags)
	case flags.readMem:
		return app.runReadMemory(ctx, flags)
	case flags.writeMem:
		return app.runWriteMemory(ctx, flags)
	case flags.multi || flags.stream:
		return app.runInventory(ctx, flags)
	default:
		return app.serve(ctx)
	}
}

func (app *Application) runMigrations() error {
	if app.database == nil {
		return errors.New("database is disabled, nothing to migrate")
	}
	return database.NewMigrator(app.database, app.logger).Up()
}

func (app *Application) runSingle(ctx context.Context, flags *cliFlags) error {
	if err := app.applySelect(ctx, flags); err != nil {
		return err
	}

	tag, err := app.readerService.SingleInventory(ctx)
	if err != nil {
		if errors.Is(err, uhf.ErrNoTag) || errors.Is(err, uhf.ErrNoResponse) {
			fmt.Println("No tag found")
			return nil
		}
		return err
	}

	fmt.Printf("EPC: %s  RSSI: %d dBm  PC: %s  CRC: %s\n", tag.EPC, tag.RSSI, tag.PC, tag.CRC)
	return nil
}

func (app *Application) runInventory(ctx context.Context, flags *cliFlags) error {
	if err := app.applySelect(ctx, flags); err != nil {
		return err
	}

	req := &service.SessionRequest{
		Duration: flags.duration,
		Throttle: flags.throttle,
	}
	if flags.stream {
		// Negative duration requests an unbounded session; zero would fall
		// back to the configured bounded default.
		req.Duration = -1
	}

	// Print tags as they arrive.
	tags, unsubscribe := app.readerService.Subscribe()
	defer unsubscribe()
	go func() {
		for tag := range tags {
			fmt.Printf("%s  EPC: %s  RSSI: %d dBm\n",
				tag.Timestamp.Format(time.RFC3339), tag.EPC, tag.RSSI)
		}
	}()

	stats, err := app.readerService.RunSession(ctx, req)
	fmt.Printf("Session %s: %d unique tags in %s (%s)\n",
		stats.SessionID, stats.UniqueTags, stats.Elapsed.Round(time.Millisecond), stats.StopReason)
	return err
}

func (app *Application) runReadMemory(ctx context.Context, flags *cliFlags) error {
	password, err := decodeHexFlag(flags.password)
	if err != nil {
		return fmt.Errorf("invalid --password: %w", err)
	}

	data, err := app.readerService.ReadMemory(ctx, flags.bank, flags.offset, flags.count, password)
	if err != nil {
		return err
	}

	fmt.Printf("Bank %d offset %d: %X\n", flags.bank, flags.offset, data)
	return nil
}

func (app *Application) runWriteMemory(ctx context.Context, flags *cliFlags) error {
	if flags.data == "" {
		return errors.New("--writemem requires --data")
	}

	data, err := hex.DecodeString(flags.data)
	if err != nil {
		return fmt.Errorf("invalid --data: %w", err)
	}

	password, err := decodeHexFlag(flags.password)
	if err != nil {
		return fmt.Errorf("invalid --password: %w", err)
	}

	if err := app.readerService.WriteMemory(ctx, flags.bank, flags.offset, data, password); err != nil {
		return err
	}

	fmt.Printf("Wrote %d words to bank %d offset %d\n", len(data)/2, flags.bank, flags.offset)
	return nil
}

func (app *Application) applySelect(ctx context.Context, flags *cliFlags) error {
	if flags.selectEPC == "" {
		return nil
	}
	return app.readerService.SelectEPC(ctx, flags.selectEPC)
}

// serve runs the HTTP server until a shutdown signal arrives
func (app *Application) serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	app.logger.Info("HTTP server stopped")
	return nil
}

// shutdown releases the reader, sinks, database and logger
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "rfid-service")
	serviceLogger.LogServiceStop("shutdown")

	if app.readerService != nil {
		if err := app.readerService.Close(); err != nil {
			app.logger.Error("Reader service close error", zap.Error(err))
		}
	}

	if app.rawLog != nil {
		if err := app.rawLog.Close(); err != nil {
			app.logger.Error("Raw log close error", zap.Error(err))
		}
	}

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	if err := utils.CloseLogger(app.logger); err != nil {
		// Sync to stderr fails on some platforms; nothing to do.
		_ = err
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func decodeHexFlag(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	return hex.DecodeString(value)
}
